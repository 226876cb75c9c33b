package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	appErrors "github.com/noah-isme/adg-admissions-api/pkg/errors"
)

func TestCacheRepositoryWithoutClient(t *testing.T) {
	repo := NewCacheRepository(nil, "adg:", nil)
	var dest map[string]int

	err := repo.Get(context.Background(), "grade:u1:c1", &dest)
	assert.True(t, errors.Is(err, appErrors.ErrCacheMiss))
	assert.NoError(t, repo.Set(context.Background(), "grade:u1:c1", map[string]int{"percent": 1}, time.Minute))
	assert.NoError(t, repo.DeleteByPattern(context.Background(), "grade:u1:*"))
	assert.Equal(t, "adg:grade:u1:c1", repo.key("grade:u1:c1"))
}
