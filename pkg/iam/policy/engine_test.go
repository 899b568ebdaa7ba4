package policy

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore holds the single policy document in memory.
type fakeStore struct {
	mu  sync.Mutex
	doc *Document
}

func (f *fakeStore) Get(ctx context.Context) (*Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.doc == nil {
		return nil, nil
	}
	d := *f.doc
	return &d, nil
}

func (f *fakeStore) Put(ctx context.Context, doc Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.doc = &doc
	return nil
}

// fakeAutoBan tracks counters and bans in memory without TTL expiry.
type fakeAutoBan struct {
	mu       sync.Mutex
	counters map[string]int
	bans     map[string]time.Time
}

func newFakeAutoBan() *fakeAutoBan {
	return &fakeAutoBan{counters: make(map[string]int), bans: make(map[string]time.Time)}
}

func (f *fakeAutoBan) IncrementFailedLogin(ctx context.Context, ip string, counterTTL time.Duration) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counters[ip]++
	return f.counters[ip], nil
}

func (f *fakeAutoBan) ResetFailedLogin(ctx context.Context, ip string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.counters, ip)
	return nil
}

func (f *fakeAutoBan) Ban(ctx context.Context, ip string, duration time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bans[ip] = time.Now().UTC().Add(duration)
	return nil
}

func (f *fakeAutoBan) IsBanned(ctx context.Context, ip string) (bool, time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	until, ok := f.bans[ip]
	return ok, until, nil
}

func testDefaults() Document {
	return Document{
		Password: testPasswordPolicy(),
		IP: IPPolicy{
			AutoBanEnabled:    true,
			AutoBanThreshold:  3,
			AutoBanDuration:   time.Hour,
			AutoBanCounterTTL: time.Hour,
		},
		MaxLoginAttempts:  10,
		SessionTimeoutMin: 30,
		RetentionDays:     90,
	}
}

func newTestEngine() (*Engine, *fakeStore, *fakeAutoBan) {
	store := &fakeStore{}
	autoBan := newFakeAutoBan()
	return NewEngine(store, autoBan, testDefaults()), store, autoBan
}

func TestGetInitializesDefaultsOnFirstRead(t *testing.T) {
	engine, store, _ := newTestEngine()
	ctx := context.Background()

	require.Nil(t, store.doc)
	doc, err := engine.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, 8, doc.Password.MinLength)
	assert.NotNil(t, store.doc)
	assert.False(t, doc.UpdatedAt.IsZero())
}

func TestUpdateRejectsOutOfBoundsValues(t *testing.T) {
	engine, _, _ := newTestEngine()
	ctx := context.Background()

	cases := []func(*Document){
		func(d *Document) { d.Password.MinLength = 3 },
		func(d *Document) { d.Password.MinLength = 300 },
		func(d *Document) { d.Password.MaxLength = d.Password.MinLength - 1 },
		func(d *Document) { d.SessionTimeoutMin = 4 },
		func(d *Document) { d.SessionTimeoutMin = 2000 },
		func(d *Document) { d.MaxLoginAttempts = 0 },
		func(d *Document) { d.MaxLoginAttempts = 51 },
		func(d *Document) { d.RetentionDays = 0 },
		func(d *Document) { d.RetentionDays = 3000 },
	}
	for i, mutate := range cases {
		doc := testDefaults()
		mutate(&doc)
		err := engine.Update(ctx, doc)
		assert.Error(t, err, "case %d", i)
	}
}

func TestUpdatePersistsValidDocument(t *testing.T) {
	engine, store, _ := newTestEngine()
	ctx := context.Background()

	doc := testDefaults()
	doc.MaxLoginAttempts = 5
	require.NoError(t, engine.Update(ctx, doc))
	assert.Equal(t, 5, store.doc.MaxLoginAttempts)
}

func TestRecordFailedLoginTriggersAutoBanAtThreshold(t *testing.T) {
	engine, _, autoBan := newTestEngine()
	ctx := context.Background()
	ip := "1.2.3.4"

	require.NoError(t, engine.CheckIP(ctx, ip))

	for i := 0; i < 3; i++ {
		require.NoError(t, engine.RecordFailedLogin(ctx, ip))
	}

	banned, _, err := autoBan.IsBanned(ctx, ip)
	require.NoError(t, err)
	assert.True(t, banned)

	// Counter resets once the ban lands.
	assert.Zero(t, autoBan.counters[ip])

	err = engine.CheckIP(ctx, ip)
	require.Error(t, err)
}

func TestRecordFailedLoginBelowThresholdDoesNotBan(t *testing.T) {
	engine, _, autoBan := newTestEngine()
	ctx := context.Background()
	ip := "1.2.3.4"

	require.NoError(t, engine.RecordFailedLogin(ctx, ip))
	require.NoError(t, engine.RecordFailedLogin(ctx, ip))

	banned, _, _ := autoBan.IsBanned(ctx, ip)
	assert.False(t, banned)
	require.NoError(t, engine.CheckIP(ctx, ip))
}

func TestResetFailedLoginClearsCounter(t *testing.T) {
	engine, _, autoBan := newTestEngine()
	ctx := context.Background()
	ip := "1.2.3.4"

	require.NoError(t, engine.RecordFailedLogin(ctx, ip))
	require.NoError(t, engine.ResetFailedLogin(ctx, ip))
	assert.Zero(t, autoBan.counters[ip])
}

func TestRecordFailedLoginNoOpWhenAutoBanDisabled(t *testing.T) {
	defaults := testDefaults()
	defaults.IP.AutoBanEnabled = false
	store := &fakeStore{}
	autoBan := newFakeAutoBan()
	engine := NewEngine(store, autoBan, defaults)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		require.NoError(t, engine.RecordFailedLogin(ctx, "1.2.3.4"))
	}
	assert.Zero(t, autoBan.counters["1.2.3.4"])
}

func TestCheckIPHonorsStaticDenyList(t *testing.T) {
	defaults := testDefaults()
	defaults.IP.DenyCIDRs = []string{"9.9.9.0/24"}
	engine := NewEngine(&fakeStore{}, newFakeAutoBan(), defaults)

	err := engine.CheckIP(context.Background(), "9.9.9.9")
	require.Error(t, err)
	require.NoError(t, engine.CheckIP(context.Background(), "9.9.8.9"))
}

func TestValidatePasswordUsesStoredPolicy(t *testing.T) {
	engine, _, _ := newTestEngine()

	result, err := engine.ValidatePassword(context.Background(), "Correct123!", []string{"bob"})
	require.NoError(t, err)
	assert.True(t, result.Valid)
}
