package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jonesrussell/backlink-checker/internal/domain"
	"github.com/jonesrussell/backlink-checker/internal/logger"
	"github.com/jonesrussell/backlink-checker/internal/repository"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDomainRepository_EnsureDomains(t *testing.T) {
	t.Parallel()

	db, mock := newMock(t)
	repo := repository.NewDomainRepository(db, logger.NewNop())

	mock.ExpectExec("ON CONFLICT \\(root_domain\\) DO NOTHING").
		WithArgs(pq.Array([]string{"a.com", "b.com"}), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	created, err := repo.EnsureDomains(context.Background(), []string{"a.com", "b.com"})
	require.NoError(t, err)
	assert.Equal(t, 1, created)

	none, err := repo.EnsureDomains(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, none)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDomainRepository_GetByRoot(t *testing.T) {
	t.Parallel()

	db, mock := newMock(t)
	repo := repository.NewDomainRepository(db, logger.NewNop())
	now := time.Now().UTC()

	mock.ExpectQuery("LEFT JOIN offers").WithArgs("example.com").
		WillReturnRows(sqlmock.NewRows([]string{"id", "root_domain", "created_at", "updated_at", "count"}).
			AddRow(1, "example.com", now, now, 3))

	d, err := repo.GetByRoot(context.Background(), "example.com")
	require.NoError(t, err)
	assert.Equal(t, 3, d.OfferCount)

	mock.ExpectQuery("LEFT JOIN offers").WithArgs("missing.com").
		WillReturnRows(sqlmock.NewRows([]string{"id", "root_domain", "created_at", "updated_at", "count"}))

	_, err = repo.GetByRoot(context.Background(), "missing.com")
	require.ErrorIs(t, err, domain.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}
