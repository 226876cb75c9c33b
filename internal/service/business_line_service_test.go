package service

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/adg-admissions-api/internal/models"
	appErrors "github.com/noah-isme/adg-admissions-api/pkg/errors"
	"github.com/noah-isme/adg-admissions-api/pkg/storage"
)

type mockBusinessLineStore struct {
	lines     map[string]*models.BusinessLine
	listCalls int
	createErr error
	seq       int
}

func newMockBusinessLineStore() *mockBusinessLineStore {
	return &mockBusinessLineStore{lines: map[string]*models.BusinessLine{
		"bl1": {ID: "bl1", Title: "Retail", LogoPath: "business_lines/retail.png"},
	}}
}

func (m *mockBusinessLineStore) List(ctx context.Context) ([]models.BusinessLine, error) {
	m.listCalls++
	var out []models.BusinessLine
	for _, l := range m.lines {
		out = append(out, *l)
	}
	return out, nil
}

func (m *mockBusinessLineStore) FindByID(ctx context.Context, id string) (*models.BusinessLine, error) {
	l, ok := m.lines[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	clone := *l
	return &clone, nil
}

func (m *mockBusinessLineStore) ExistsByTitle(ctx context.Context, title, excludeID string) (bool, error) {
	for id, l := range m.lines {
		if id != excludeID && strings.EqualFold(l.Title, title) {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockBusinessLineStore) Create(ctx context.Context, line *models.BusinessLine) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.seq++
	line.ID = fmt.Sprintf("new%d", m.seq)
	clone := *line
	m.lines[line.ID] = &clone
	return nil
}

func (m *mockBusinessLineStore) Update(ctx context.Context, line *models.BusinessLine) error {
	clone := *line
	m.lines[line.ID] = &clone
	return nil
}

func (m *mockBusinessLineStore) Delete(ctx context.Context, id string) error {
	if _, ok := m.lines[id]; !ok {
		return sql.ErrNoRows
	}
	delete(m.lines, id)
	return nil
}

func newBusinessLineFixture() (*BusinessLineService, *mockBusinessLineStore, *mockFileStore) {
	repo := newMockBusinessLineStore()
	files := &mockFileStore{}
	cache := NewCacheService(newMemCacheRepo(), nil, time.Minute, nil, true)
	return NewBusinessLineService(repo, files, cache, nil, storage.UploadPolicy{}, nil), repo, files
}

func logoUpload(name string) *storage.Upload {
	return &storage.Upload{Filename: name, Size: 4, Content: strings.NewReader("logo")}
}

func TestBusinessLineListIsCached(t *testing.T) {
	svc, repo, _ := newBusinessLineFixture()

	first, err := svc.List(context.Background())
	require.NoError(t, err)
	second, err := svc.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, repo.listCalls)

	_, err = svc.Create(context.Background(), models.BusinessLineRequest{Title: "Logistics"}, logoUpload("logistics.png"))
	require.NoError(t, err)
	lines, err := svc.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, lines, 2)
	assert.Equal(t, 2, repo.listCalls)
}

func TestBusinessLineCreateRequiresLogoAndUniqueTitle(t *testing.T) {
	svc, _, files := newBusinessLineFixture()

	_, err := svc.Create(context.Background(), models.BusinessLineRequest{Title: "Logistics"}, nil)
	assert.Contains(t, fieldsOf(t, err), "logo")

	_, err = svc.Create(context.Background(), models.BusinessLineRequest{Title: "  retail "}, logoUpload("r.png"))
	requireAppError(t, err, appErrors.ErrConflict)
	assert.Empty(t, files.stored)
}

func TestBusinessLineCreateRemovesLogoOnFailure(t *testing.T) {
	svc, repo, files := newBusinessLineFixture()
	repo.createErr = assert.AnError

	_, err := svc.Create(context.Background(), models.BusinessLineRequest{Title: "Logistics"}, logoUpload("l.png"))
	requireAppError(t, err, appErrors.ErrInternal)
	assert.Equal(t, files.stored, files.deleted)
}

func TestBusinessLineUpdateReplacesLogo(t *testing.T) {
	svc, repo, files := newBusinessLineFixture()

	line, err := svc.Update(context.Background(), "bl1", models.BusinessLineRequest{Title: "Retail", Description: "Stores"}, logoUpload("retail-v2.png"))
	require.NoError(t, err)
	assert.Equal(t, "business_lines/retail-v2.png", line.LogoPath)
	assert.Equal(t, []string{"business_lines/retail.png"}, files.deleted)
	assert.Equal(t, "Stores", repo.lines["bl1"].Description)

	_, err = svc.Update(context.Background(), "missing", models.BusinessLineRequest{Title: "X"}, nil)
	requireAppError(t, err, appErrors.ErrNotFound)
}

func TestBusinessLineDelete(t *testing.T) {
	svc, repo, files := newBusinessLineFixture()

	require.NoError(t, svc.Delete(context.Background(), "bl1"))
	assert.Empty(t, repo.lines)
	assert.Equal(t, []string{"business_lines/retail.png"}, files.deleted)

	requireAppError(t, svc.Delete(context.Background(), "bl1"), appErrors.ErrNotFound)
}
