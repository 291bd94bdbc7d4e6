package use_case

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PluralKit/avatars/internal/entities"
	"github.com/PluralKit/avatars/internal/faults"
	"github.com/PluralKit/avatars/internal/processor"
	"github.com/PluralKit/avatars/internal/puller"
	"github.com/PluralKit/avatars/internal/r2"
)

const testURL = "https://cdn.discordapp.com/attachments/123/456/avatar.png"

type stubCatalog struct {
	records    map[int64]*entities.ImageRecord
	urlRecords map[string]*entities.ImageRecord
	insertNew  bool
	inserted   *entities.ImageRecord
	lookups    int
	stats      *entities.Stats
	statsCalls int
}

func (s *stubCatalog) GetByAttachmentID(ctx context.Context, attachmentID int64) (*entities.ImageRecord, error) {
	s.lookups++
	return s.records[attachmentID], nil
}

func (s *stubCatalog) GetByOriginalURL(ctx context.Context, originalURL string) (*entities.ImageRecord, error) {
	return s.urlRecords[originalURL], nil
}

func (s *stubCatalog) InsertImage(ctx context.Context, rec *entities.ImageRecord) (bool, error) {
	s.inserted = rec
	return s.insertNew, nil
}

func (s *stubCatalog) GetStats(ctx context.Context) (*entities.Stats, error) {
	s.statsCalls++
	return s.stats, nil
}

func (s *stubCatalog) Ping(ctx context.Context) error { return nil }

type stubFetcher struct {
	result *puller.PullResult
	err    error
	calls  int
}

func (s *stubFetcher) Pull(ctx context.Context, src *puller.ParsedSource) (*puller.PullResult, error) {
	s.calls++
	return s.result, s.err
}

type stubPipeline struct {
	out *processor.Output
	err error
}

func (s *stubPipeline) Process(ctx context.Context, data []byte, kind entities.ImageKind) (*processor.Output, error) {
	return s.out, s.err
}

type stubStore struct {
	result *r2.StoreResult
	err    error
}

func (s *stubStore) Store(ctx context.Context, out *processor.Output) (*r2.StoreResult, error) {
	return s.result, s.err
}

type stubCache struct {
	records map[int64]*entities.ImageRecord
	stats   *entities.Stats
}

func newStubCache() *stubCache {
	return &stubCache{records: map[int64]*entities.ImageRecord{}}
}

func (s *stubCache) GetRecord(ctx context.Context, attachmentID int64) (*entities.ImageRecord, bool) {
	rec, ok := s.records[attachmentID]
	return rec, ok
}

func (s *stubCache) StoreRecord(ctx context.Context, attachmentID int64, rec *entities.ImageRecord) {
	s.records[attachmentID] = rec
}

func (s *stubCache) GetStats(ctx context.Context) (*entities.Stats, bool) {
	return s.stats, s.stats != nil
}

func (s *stubCache) StoreStats(ctx context.Context, stats *entities.Stats) { s.stats = stats }

func happyFixture() (*stubCatalog, *stubFetcher, *stubPipeline, *stubStore, *stubCache) {
	catalog := &stubCatalog{
		records:    map[int64]*entities.ImageRecord{},
		urlRecords: map[string]*entities.ImageRecord{},
		insertNew:  true,
	}
	fetcher := &stubFetcher{result: &puller.PullResult{
		Data:        make([]byte, 2048),
		ContentType: "image/png",
	}}
	pipeline := &stubPipeline{out: &processor.Output{
		Width:    512,
		Height:   256,
		Hash:     "ab12cd",
		Data:     make([]byte, 700),
		MimeType: "image/webp",
	}}
	store := &stubStore{result: &r2.StoreResult{
		ID:   "ab12cd",
		Path: "images/ab/12cd.webp",
	}}
	return catalog, fetcher, pipeline, store, newStubCache()
}

func TestPull_FullFlow(t *testing.T) {
	catalog, fetcher, pipeline, store, cache := happyFixture()
	uc := New(catalog, fetcher, pipeline, store, cache, "https://avatars.example/")

	account := int64(42)
	system := uuid.New()
	out, err := uc.Pull(context.Background(), PullParams{
		URL: testURL, Kind: entities.KindAvatar, UploadedBy: &account, SystemID: &system,
	})
	require.NoError(t, err)
	assert.Equal(t, "https://avatars.example/images/ab/12cd.webp", out.URL)
	assert.True(t, out.New)

	rec := catalog.inserted
	require.NotNil(t, rec)
	assert.Equal(t, "ab12cd", rec.ID)
	assert.Equal(t, entities.KindAvatar, rec.Kind)
	assert.Equal(t, int32(700), rec.FileSize)
	assert.Equal(t, int32(512), rec.Width)
	assert.Equal(t, int32(256), rec.Height)
	require.NotNil(t, rec.OriginalURL)
	assert.Equal(t, testURL, *rec.OriginalURL)
	require.NotNil(t, rec.OriginalAttachmentID)
	assert.Equal(t, int64(456), *rec.OriginalAttachmentID)
	require.NotNil(t, rec.OriginalFileSize)
	assert.Equal(t, int32(2048), *rec.OriginalFileSize)
	require.NotNil(t, rec.OriginalType)
	assert.Equal(t, "image/png", *rec.OriginalType)
	require.NotNil(t, rec.UploadedByAccount)
	assert.Equal(t, int64(42), *rec.UploadedByAccount)
	require.NotNil(t, rec.UploadedBySystem)
	assert.Equal(t, system, *rec.UploadedBySystem)

	// the fresh record lands in the cache for the next lookup
	cached, ok := cache.GetRecord(context.Background(), 456)
	require.True(t, ok)
	assert.Equal(t, rec.URL, cached.URL)
}

func TestPull_DedupShortCircuits(t *testing.T) {
	catalog, fetcher, pipeline, store, cache := happyFixture()
	catalog.records[456] = &entities.ImageRecord{ID: "existing", URL: "https://avatars.example/images/ex/isting.webp"}
	uc := New(catalog, fetcher, pipeline, store, cache, "https://avatars.example/")

	out, err := uc.Pull(context.Background(), PullParams{URL: testURL, Kind: entities.KindAvatar})
	require.NoError(t, err)
	assert.Equal(t, "https://avatars.example/images/ex/isting.webp", out.URL)
	assert.False(t, out.New)
	assert.Zero(t, fetcher.calls, "dedup hit must not touch the origin")
	assert.Nil(t, catalog.inserted)
}

func TestPull_DedupByOriginalURL(t *testing.T) {
	catalog, fetcher, pipeline, store, cache := happyFixture()
	catalog.urlRecords[testURL] = &entities.ImageRecord{ID: "byurl", URL: "https://avatars.example/images/by/url.webp"}
	uc := New(catalog, fetcher, pipeline, store, cache, "https://avatars.example/")

	out, err := uc.Pull(context.Background(), PullParams{URL: testURL, Kind: entities.KindAvatar})
	require.NoError(t, err)
	assert.Equal(t, "https://avatars.example/images/by/url.webp", out.URL)
	assert.False(t, out.New)
	assert.Zero(t, fetcher.calls)
}

func TestPull_CacheHitSkipsDatabase(t *testing.T) {
	catalog, fetcher, pipeline, store, cache := happyFixture()
	cache.StoreRecord(context.Background(), 456, &entities.ImageRecord{URL: "https://avatars.example/cached.webp"})
	uc := New(catalog, fetcher, pipeline, store, cache, "https://avatars.example/")

	out, err := uc.Pull(context.Background(), PullParams{URL: testURL, Kind: entities.KindAvatar})
	require.NoError(t, err)
	assert.Equal(t, "https://avatars.example/cached.webp", out.URL)
	assert.False(t, out.New)
	assert.Zero(t, catalog.lookups)
	assert.Zero(t, fetcher.calls)
}

func TestPull_ForceBypassesDedup(t *testing.T) {
	catalog, fetcher, pipeline, store, cache := happyFixture()
	catalog.records[456] = &entities.ImageRecord{ID: "existing", URL: "old"}
	catalog.insertNew = false
	uc := New(catalog, fetcher, pipeline, store, cache, "https://avatars.example/")

	out, err := uc.Pull(context.Background(), PullParams{URL: testURL, Kind: entities.KindAvatar, Force: true})
	require.NoError(t, err)
	assert.Equal(t, 1, fetcher.calls, "force must re-fetch")
	assert.Zero(t, catalog.lookups)
	assert.False(t, out.New, "conflicting insert reports prior work")
	assert.Equal(t, "https://avatars.example/images/ab/12cd.webp", out.URL)
}

func TestPull_InsertConflictReportsNotNew(t *testing.T) {
	catalog, fetcher, pipeline, store, cache := happyFixture()
	catalog.insertNew = false
	uc := New(catalog, fetcher, pipeline, store, cache, "https://avatars.example/")

	out, err := uc.Pull(context.Background(), PullParams{URL: testURL, Kind: entities.KindBanner})
	require.NoError(t, err)
	assert.False(t, out.New)
}

func TestPull_InvalidURL(t *testing.T) {
	catalog, fetcher, pipeline, store, cache := happyFixture()
	uc := New(catalog, fetcher, pipeline, store, cache, "https://avatars.example/")

	_, err := uc.Pull(context.Background(), PullParams{URL: "https://evil.example/x.png", Kind: entities.KindAvatar})
	require.Error(t, err)
	var ferr *faults.Error
	require.ErrorAs(t, err, &ferr)
	assert.Equal(t, faults.InvalidSource, ferr.Kind)
	assert.Zero(t, fetcher.calls)
}

func TestPull_FetchErrorPropagates(t *testing.T) {
	catalog, fetcher, pipeline, store, cache := happyFixture()
	fetcher.err = faults.BadOrigin(404)
	fetcher.result = nil
	uc := New(catalog, fetcher, pipeline, store, cache, "https://avatars.example/")

	_, err := uc.Pull(context.Background(), PullParams{URL: testURL, Kind: entities.KindAvatar})
	require.Error(t, err)
	assert.Equal(t, faults.ClassPermanent, faults.Classify(err))
	assert.Nil(t, catalog.inserted)
}

func TestStats_CachesResult(t *testing.T) {
	catalog, fetcher, pipeline, store, cache := happyFixture()
	catalog.stats = &entities.Stats{TotalImages: 10, TotalFileSize: 123456}
	uc := New(catalog, fetcher, pipeline, store, cache, "https://avatars.example/")

	first, err := uc.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(10), first.TotalImages)

	second, err := uc.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, catalog.statsCalls, "second read served from cache")
}
