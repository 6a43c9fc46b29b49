package access

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"

	coredatabase "github.com/m3rciful/vcfbot/core/database"
)

func openTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	cfg := coredatabase.Config{Path: coredatabase.MemoryPath, MigrationsDir: "../../migrations"}
	db, err := coredatabase.Connect(cfg)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := coredatabase.RunMigrations(db, cfg); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestStore(t *testing.T, owners ...int64) (*Store, *fakeClock) {
	clock := &fakeClock{now: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)}
	s := NewStore(openTestDB(t), Options{
		Trial: 30 * time.Minute,
		Now:   clock.Now,
		IsOwner: func(id int64) bool {
			for _, o := range owners {
				if o == id {
					return true
				}
			}
			return false
		},
	})
	return s, clock
}

func TestGetOrCreateUserStartsTrialOnce(t *testing.T) {
	s, clock := newTestStore(t)
	ctx := context.Background()

	u, err := s.GetOrCreateUser(ctx, 42, "alice")
	if err != nil {
		t.Fatal(err)
	}
	wantEnd := clock.now.Add(30 * time.Minute).Unix()
	if u.TrialEnd != wantEnd || u.Username != "alice" {
		t.Fatalf("user = %+v, want trial_end %d", u, wantEnd)
	}

	clock.Advance(time.Hour)
	again, err := s.GetOrCreateUser(ctx, 42, "")
	if err != nil {
		t.Fatal(err)
	}
	if again.TrialEnd != wantEnd {
		t.Fatalf("trial restarted: %d != %d", again.TrialEnd, wantEnd)
	}
	if again.Username != "alice" {
		t.Fatalf("empty username overwrote the stored one: %q", again.Username)
	}
}

func TestUnifiedStatusPrecedence(t *testing.T) {
	s, clock := newTestStore(t, 1)
	ctx := context.Background()

	st, err := s.GetUnifiedStatus(ctx, 1, "")
	if err != nil || st.Kind != StatusOwner {
		t.Fatalf("owner status = %+v, %v", st, err)
	}

	st, err = s.GetUnifiedStatus(ctx, 2, "bob")
	if err != nil || st.Kind != StatusTrial || st.SecondsLeft != 1800 {
		t.Fatalf("new user status = %+v, %v", st, err)
	}

	clock.Advance(31 * time.Minute)
	st, err = s.GetUnifiedStatus(ctx, 2, "bob")
	if err != nil || st.Kind != StatusExpired || st.Allowed() {
		t.Fatalf("after trial status = %+v, %v", st, err)
	}

	if _, err := s.UpsertSubscription(ctx, 2, "bob", PlanWeek); err != nil {
		t.Fatal(err)
	}
	st, err = s.GetUnifiedStatus(ctx, 2, "bob")
	if err != nil || st.Kind != StatusWeek || st.SecondsLeft != int64((7*24*time.Hour).Seconds()) {
		t.Fatalf("week status = %+v, %v", st, err)
	}

	clock.Advance(8 * 24 * time.Hour)
	st, _ = s.GetUnifiedStatus(ctx, 2, "bob")
	if st.Kind != StatusExpired {
		t.Fatalf("lapsed week status = %+v", st)
	}

	if _, err := s.UpsertSubscription(ctx, 2, "", PlanPermanent); err != nil {
		t.Fatal(err)
	}
	clock.Advance(1000 * 24 * time.Hour)
	st, _ = s.GetUnifiedStatus(ctx, 2, "bob")
	if st.Kind != StatusPermanent || !st.Allowed() {
		t.Fatalf("permanent status = %+v", st)
	}
}

func TestSubscriptionCRUD(t *testing.T) {
	s, clock := newTestStore(t)
	ctx := context.Background()

	if _, err := s.UpsertSubscription(ctx, 30, "carol", PlanMonth); err != nil {
		t.Fatal(err)
	}
	if _, err := s.UpsertSubscription(ctx, 10, "dave", PlanDay); err != nil {
		t.Fatal(err)
	}
	if _, err := s.UpsertSubscription(ctx, 10, "", PlanPermanent); err != nil {
		t.Fatal(err)
	}

	subs, err := s.ListSubscriptions(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(subs) != 2 || subs[0].UserID != 10 || subs[1].UserID != 30 {
		t.Fatalf("list = %+v, want ordered by user id", subs)
	}
	if subs[0].Plan != PlanPermanent || subs[0].ExpiresAt != 0 || subs[0].Username != "dave" {
		t.Fatalf("upsert did not replace the plan: %+v", subs[0])
	}
	if want := clock.now.Add(30 * 24 * time.Hour).Unix(); subs[1].ExpiresAt != want {
		t.Fatalf("month expiry = %d, want %d", subs[1].ExpiresAt, want)
	}

	u, err := s.GetOrCreateUser(ctx, 30, "")
	if err != nil {
		t.Fatal(err)
	}
	if u.PaidUntil != subs[1].ExpiresAt {
		t.Fatalf("paid_until = %d, want %d", u.PaidUntil, subs[1].ExpiresAt)
	}

	existed, err := s.DeleteSubscription(ctx, 30)
	if err != nil || !existed {
		t.Fatalf("delete = %v, %v", existed, err)
	}
	if _, ok, _ := s.GetSubscription(ctx, 30); ok {
		t.Fatal("subscription still present")
	}
	if existed, _ := s.DeleteSubscription(ctx, 30); existed {
		t.Fatal("second delete reported a row")
	}
}

func TestUpsertRejectsUnknownPlan(t *testing.T) {
	s, _ := newTestStore(t)
	if _, err := s.UpsertSubscription(context.Background(), 5, "", Plan("yearly")); err == nil {
		t.Fatal("expected error for unknown plan")
	}
}

func TestHumanLeft(t *testing.T) {
	cases := map[int64]string{0: "0m", -5: "0m", 59: "0m", 60: "1m", 3600: "1j", 3660 + 60: "1j 2m", 7200 + 1800: "2j 30m"}
	for in, want := range cases {
		if got := HumanLeft(in); got != want {
			t.Errorf("HumanLeft(%d) = %q, want %q", in, got, want)
		}
	}
}

func TestParsePlan(t *testing.T) {
	if p, ok := ParsePlan(" Month "); !ok || p != PlanMonth {
		t.Fatalf("ParsePlan = %q, %v", p, ok)
	}
	if _, ok := ParsePlan("monthly"); ok {
		t.Fatal("monthly is not a plan")
	}
}

type stubMembers map[string]bool

func (m stubMembers) IsMember(_ context.Context, chat string, _ int64) (bool, error) {
	joined, ok := m[chat]
	if !ok {
		return false, errors.New("chat not found")
	}
	return joined, nil
}

func TestGateDecisions(t *testing.T) {
	s, clock := newTestStore(t, 1)
	ctx := context.Background()
	gate := NewGate(s, GateOptions{
		Members:         stubMembers{"@chan": true, "@grp": false},
		RequiredChannel: "@chan",
		RequiredGroup:   "@grp",
		OwnerContact:    "@owner",
	})

	if v, err := gate.Check(ctx, 1, ""); err != nil || v.Decision != Allow || v.Status.Kind != StatusOwner {
		t.Fatalf("owner verdict = %+v, %v", v, err)
	}

	v, err := gate.Check(ctx, 2, "")
	if err != nil || v.Decision != NeedJoin || !v.JoinedChannel || v.JoinedGroup {
		t.Fatalf("non member verdict = %+v, %v", v, err)
	}
	text, _ := gate.JoinText(v)
	if !strings.Contains(text, "✅ Sudah join channel\n❌ Belum join group") {
		t.Fatalf("join text = %q", text)
	}

	open := NewGate(s, GateOptions{Members: stubMembers{}})
	v, err = open.Check(ctx, 2, "")
	if err != nil || v.Decision != Allow || v.Status.Kind != StatusTrial {
		t.Fatalf("trial verdict = %+v, %v", v, err)
	}
	clock.Advance(time.Hour)
	v, err = open.Check(ctx, 2, "")
	if err != nil || v.Decision != Paywall {
		t.Fatalf("expired verdict = %+v, %v", v, err)
	}
	text, _ = gate.PaywallText()
	if !strings.Contains(text, "@owner") || !strings.Contains(text, "Akses diperlukan") {
		t.Fatalf("paywall text = %q", text)
	}
}
