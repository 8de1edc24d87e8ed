package syncer

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/matthewlkramer/Wildflower-TLs-and-Schools-sub004/internal/models"
	"github.com/matthewlkramer/Wildflower-TLs-and-Schools-sub004/internal/repository"
)

// fakeProvider lets tests inject behavior per call.
type fakeProvider struct {
	kind            PeriodKind
	listIDsFunc     func(ctx context.Context, userID string, w Window, pageToken string) ([]string, string, error)
	fetchHeaderFunc func(ctx context.Context, userID, itemID string) (*models.Item, error)
	fetchBodyFunc   func(ctx context.Context, userID, itemID string) (*Body, error)
}

func (f *fakeProvider) Name() models.Provider { return models.ProviderGmail }
func (f *fakeProvider) Kind() PeriodKind      { return f.kind }

func (f *fakeProvider) ListIDs(ctx context.Context, userID string, w Window, pageToken string) ([]string, string, error) {
	if f.listIDsFunc == nil {
		return nil, "", nil
	}
	return f.listIDsFunc(ctx, userID, w, pageToken)
}

func (f *fakeProvider) FetchHeader(ctx context.Context, userID, itemID string) (*models.Item, error) {
	if f.fetchHeaderFunc == nil {
		return &models.Item{UserID: userID, ItemID: itemID}, nil
	}
	return f.fetchHeaderFunc(ctx, userID, itemID)
}

func (f *fakeProvider) FetchBody(ctx context.Context, userID, itemID string) (*Body, error) {
	if f.fetchBodyFunc == nil {
		return &Body{Text: "body"}, nil
	}
	return f.fetchBodyFunc(ctx, userID, itemID)
}

// memItemStore mirrors the item table's upsert semantics in memory: header
// columns update in place, body and match columns survive re-upserts.
type memItemStore struct {
	mu   sync.Mutex
	rows map[string]*models.Item
}

func newMemItemStore() *memItemStore {
	return &memItemStore{rows: make(map[string]*models.Item)}
}

func itemKey(userID, itemID string) string { return userID + "|" + itemID }

func (s *memItemStore) UpsertHeaders(ctx context.Context, items []models.Item, batchSize int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, item := range items {
		k := itemKey(item.UserID, item.ItemID)
		if existing, ok := s.rows[k]; ok {
			existing.ThreadID = item.ThreadID
			existing.Sender = item.Sender
			existing.Recipients = item.Recipients
			existing.Subject = item.Subject
			existing.ItemTimestamp = item.ItemTimestamp
			existing.Snippet = item.Snippet
			continue
		}
		row := item
		s.rows[k] = &row
	}
	return len(items), nil
}

func (s *memItemStore) CountInWindow(ctx context.Context, userID string, start, end time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, row := range s.rows {
		if row.UserID == userID && !row.ItemTimestamp.Before(start) && row.ItemTimestamp.Before(end) {
			count++
		}
	}
	return count, nil
}

func (s *memItemStore) ListWindow(ctx context.Context, start, end time.Time) ([]models.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Item
	for _, row := range s.rows {
		if !row.ItemTimestamp.Before(start) && row.ItemTimestamp.Before(end) {
			out = append(out, *row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ItemID < out[j].ItemID })
	return out, nil
}

func (s *memItemStore) UpdateMatches(ctx context.Context, userID, itemID string, contactIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if row, ok := s.rows[itemKey(userID, itemID)]; ok {
		row.MatchedContactIDs = contactIDs
	}
	return nil
}

func (s *memItemStore) ListNeedingBodies(ctx context.Context, userID string, start, end time.Time) ([]models.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Item
	for _, row := range s.rows {
		if row.UserID != userID || row.BodyFetched || len(row.MatchedContactIDs) == 0 {
			continue
		}
		if row.ItemTimestamp.Before(start) || !row.ItemTimestamp.Before(end) {
			continue
		}
		out = append(out, *row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ItemID < out[j].ItemID })
	return out, nil
}

func (s *memItemStore) UpdateBody(ctx context.Context, userID, itemID, bodyText, bodyHTML string, hasAttachments bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if row, ok := s.rows[itemKey(userID, itemID)]; ok {
		row.BodyText = bodyText
		row.BodyHTML = bodyHTML
		row.HasAttachments = hasAttachments
		row.BodyFetched = true
	}
	return nil
}

func (s *memItemStore) get(userID, itemID string) *models.Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rows[itemKey(userID, itemID)]
}

// memProgressStore mirrors the progress table, including monotonic counters.
type memProgressStore struct {
	mu   sync.Mutex
	rows map[string]*models.PeriodProgress
}

func newMemProgressStore() *memProgressStore {
	return &memProgressStore{rows: make(map[string]*models.PeriodProgress)}
}

func progressKey(userID string, year, number int) string {
	return fmt.Sprintf("%s|%d|%d", userID, year, number)
}

func (s *memProgressStore) ListSince(ctx context.Context, userID string, epoch time.Time) ([]models.PeriodProgress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.PeriodProgress
	for _, row := range s.rows {
		if row.UserID == userID && !row.PeriodStart.Before(epoch) {
			out = append(out, *row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PeriodStart.Before(out[j].PeriodStart) })
	return out, nil
}

func (s *memProgressStore) Upsert(ctx context.Context, row *models.PeriodProgress) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := progressKey(row.UserID, row.Year, row.PeriodNumber)
	if existing, ok := s.rows[k]; ok {
		existing.Status = row.Status
		existing.StartedAt = row.StartedAt
		return nil
	}
	cp := *row
	s.rows[k] = &cp
	return nil
}

func (s *memProgressStore) SetStatus(ctx context.Context, userID string, year, periodNumber int, status models.PeriodState, errMsg *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[progressKey(userID, year, periodNumber)]
	if !ok {
		return nil
	}
	row.Status = status
	row.ErrorMessage = errMsg
	if status == models.PeriodCompleted || status == models.PeriodPartial {
		now := time.Now()
		row.CompletedAt = &now
	}
	return nil
}

func (s *memProgressStore) SetTotalItems(ctx context.Context, userID string, year, periodNumber, total int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if row, ok := s.rows[progressKey(userID, year, periodNumber)]; ok {
		row.TotalItems = total
	}
	return nil
}

func (s *memProgressStore) BumpCounters(ctx context.Context, userID string, year, periodNumber int, c repository.Counters) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[progressKey(userID, year, periodNumber)]
	if !ok {
		return nil
	}
	row.HeadersFetched = maxInt(row.HeadersFetched, c.HeadersFetched)
	row.ItemsSynced = maxInt(row.ItemsSynced, c.ItemsSynced)
	row.ItemsMatched = maxInt(row.ItemsMatched, c.ItemsMatched)
	row.BodiesFetched = maxInt(row.BodiesFetched, c.BodiesFetched)
	return nil
}

func (s *memProgressStore) get(userID string, year, number int) *models.PeriodProgress {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rows[progressKey(userID, year, number)]
}

func (s *memProgressStore) seed(row models.PeriodProgress) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[progressKey(row.UserID, row.Year, row.PeriodNumber)] = &row
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// fakeStatusStore tracks the global state machine in memory.
type fakeStatusStore struct {
	mu          sync.Mutex
	state       models.SyncState
	message     *string
	claimErr    error
	claims      int
	transitions []models.SyncState
}

func (f *fakeStatusStore) Get(ctx context.Context, userID string) (*models.SyncStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	state := f.state
	if state == "" {
		state = models.SyncNotStarted
	}
	return &models.SyncStatus{UserID: userID, Status: state, ErrorMessage: f.message}, nil
}

func (f *fakeStatusStore) ClaimRun(ctx context.Context, userID, runID string, startedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.claimErr != nil {
		return f.claimErr
	}
	f.claims++
	f.state = models.SyncRunning
	return nil
}

func (f *fakeStatusStore) SetState(ctx context.Context, userID string, state models.SyncState, message *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = state
	f.message = message
	f.transitions = append(f.transitions, state)
	return nil
}

func (f *fakeStatusStore) RequestPause(ctx context.Context, userID string, message string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != models.SyncRunning {
		return false, nil
	}
	f.state = models.SyncPaused
	f.message = &message
	return true, nil
}

func (f *fakeStatusStore) snapshot() (models.SyncState, string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msg := ""
	if f.message != nil {
		msg = *f.message
	}
	return f.state, msg
}

type fakeContactStore struct {
	index map[string]string
	err   error
}

func (f *fakeContactStore) EmailIndex(ctx context.Context) (map[string]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.index, nil
}

type fakeConsoleStore struct {
	mu    sync.Mutex
	lines []string
}

func (f *fakeConsoleStore) Append(ctx context.Context, userID, runID, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lines = append(f.lines, message)
	return nil
}
