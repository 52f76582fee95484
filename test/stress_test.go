package test

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"disputeflow/assignment"
	"disputeflow/attachment"
	"disputeflow/dispute"
	"disputeflow/inbound"
	"disputeflow/notify"
	"disputeflow/test/actors"
	"disputeflow/test/chaos"
	"disputeflow/test/infra"
	"disputeflow/test/oracles"
)

var (
	flDuration    = flag.Duration("duration", 90*time.Second, "how long to run stress")
	flConcurrency = flag.Int("concurrency", 8, "number of concurrent actors")
	flSeed        = flag.Int64("seed", time.Now().UnixNano(), "random seed")
	flDSN         = flag.String("dsn", "", "existing Postgres DSN to reuse (avoids Docker)")
)

func seedRNG(seed int64) { rand.Seed(seed) }

func TestDisputeLifecycleConcurrency(t *testing.T) {
	flag.Parse()
	seed := *flSeed
	seedRNG(seed)

	var (
		pgC        *infra.PGContainer
		dsn        string
		err        error
		usedShared bool
	)
	ctx, cancel := context.WithTimeout(context.Background(), *flDuration+60*time.Second)
	defer cancel()

	switch {
	case *flDSN != "":
		dsn = *flDSN
		usedShared = true
		pgC = &infra.PGContainer{}
	case os.Getenv("STRESS_TEST_PG_DSN") != "":
		dsn = os.Getenv("STRESS_TEST_PG_DSN")
		usedShared = true
		pgC = &infra.PGContainer{}
	default:
		if dockerAvailable(ctx) {
			pgC, dsn, err = infra.StartPostgres16(ctx, "")
			if err != nil {
				t.Fatalf("start postgres: %v", err)
			}
		} else {
			dsn, err = infra.InitLocalDatabase(ctx)
			if err != nil {
				t.Fatalf("init local database: %v", err)
			}
			pgC = &infra.PGContainer{}
		}
	}
	defer pgC.Terminate(context.Background())

	// migrations
	pool, teardown, err := infra.ApplyMigrations(ctx, dsn, usedShared)
	if err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	defer pool.Close()
	defer func() {
		if err := teardown(context.Background()); err != nil {
			t.Logf("teardown warning: %v", err)
		}
	}()

	// seed minimal data
	seedData := mustSeed(t, ctx, pool)

	// production wiring against the test database
	lockTimeout := 250 * time.Millisecond
	engine := assignment.NewEngine(pool, assignment.NewPGRepository(pool, lockTimeout))
	svc := dispute.NewService(pool, dispute.NewRepository(pool, lockTimeout)).WithEscalator(engine)
	ledger := attachment.NewLedger(pool, attachment.NewRepository(pool, lockTimeout))
	payloads := inbound.NewRepository(pool)
	outbox := notify.NewPGOutbox(pool, 5)

	// run actors
	g, ctx2 := errgroup.WithContext(ctx)
	stop := make(chan struct{})

	// assigners and transitioners battling over the same business
	for i := 0; i < *flConcurrency; i++ {
		g.Go(func() error {
			return actors.Assigner(ctx2, payloads, engine, seedData.businessID, stop)
		})
		g.Go(func() error {
			return actors.Transitioner(ctx2, pool, svc, seedData.merchantID, stop)
		})
	}

	// evidence uploads
	g.Go(func() error { return actors.Attacher(ctx2, pool, ledger, stop) })
	// roster churn under the assigners' feet
	g.Go(func() error { return actors.RosterChurner(ctx2, pool, seedData.merchantID, stop) })
	// outbox drain with a flaky publisher
	g.Go(func() error { return actors.OutboxWorker(ctx2, outbox, stop) })
	// chaos: kill random backend
	go chaos.TerminateRandomBackend(ctx2, pool, stop)

	// schedule oracle checks until duration reached
	deadline := time.Now().Add(*flDuration)
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	var failed bool
loop:
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			break loop
		case <-ticker.C:
			name, row, err := oracles.Run(ctx2, pool)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					break loop
				}
				t.Fatalf("oracle error: %v", err)
			}
			if name != "" {
				failed = true
				dumpRecent(t, ctx2, pool)
				t.Fatalf("Oracle %s failed. First row: %s (seed=%d)", name, row, seed)
			}
		}
	}

	close(stop)
	if err := g.Wait(); err != nil && !failed {
		if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("actors errored: %v", err)
		}
	}
}

func dockerAvailable(ctx context.Context) bool {
	if _, err := exec.LookPath("docker"); err != nil {
		return false
	}
	c := exec.CommandContext(ctx, "docker", "info")
	c.Stdout = io.Discard
	c.Stderr = io.Discard
	return c.Run() == nil
}

type seedIDs struct {
	merchantID string
	businessID string
	analystIDs []string
	managerIDs []string
}

func mustSeed(t *testing.T, ctx context.Context, pool *pgxpool.Pool) seedIDs {
	t.Helper()
	var s seedIDs
	// merchant
	if err := pool.QueryRow(ctx, `INSERT INTO merchants (name) VALUES ($1) RETURNING id`, fmt.Sprintf("Stress Merchant %d", rand.Int63())).Scan(&s.merchantID); err != nil {
		t.Fatalf("seed merchant: %v", err)
	}
	// business
	if err := pool.QueryRow(ctx, `INSERT INTO businesses (merchant_id, custom_id, name) VALUES ($1,$2,$3) RETURNING id`,
		s.merchantID, fmt.Sprintf("biz-%d", rand.Int63()), "Stress Business").Scan(&s.businessID); err != nil {
		t.Fatalf("seed business: %v", err)
	}
	// analysts: enough to make the round-robin visible, managers for escalation
	for i := 0; i < 4; i++ {
		var id string
		if err := pool.QueryRow(ctx, `INSERT INTO staff (merchant_id, role, full_name, email) VALUES ($1,'analyst',$2,$3) RETURNING id`,
			s.merchantID, fmt.Sprintf("Analyst %d", i), fmt.Sprintf("analyst%d-%d@example.com", i, rand.Int63())).Scan(&id); err != nil {
			t.Fatalf("seed analyst %d: %v", i, err)
		}
		s.analystIDs = append(s.analystIDs, id)
	}
	for i := 0; i < 2; i++ {
		var id string
		if err := pool.QueryRow(ctx, `INSERT INTO staff (merchant_id, role, full_name, email) VALUES ($1,'manager',$2,$3) RETURNING id`,
			s.merchantID, fmt.Sprintf("Manager %d", i), fmt.Sprintf("manager%d-%d@example.com", i, rand.Int63())).Scan(&id); err != nil {
			t.Fatalf("seed manager %d: %v", i, err)
		}
		s.managerIDs = append(s.managerIDs, id)
	}
	return s
}

func dumpRecent(t *testing.T, ctx context.Context, pool *pgxpool.Pool) {
	t.Helper()
	type dump struct {
		name string
		sql  string
	}
	dumps := []dump{
		{"disputes", `SELECT id, business_id, current_stage, assigned_analyst_id, assigned_manager_id, updated_at FROM disputes ORDER BY updated_at DESC LIMIT 50`},
		{"dispute_history", `SELECT id, dispute_id, previous_stage, new_stage, actor_role, recorded_at FROM dispute_history ORDER BY id DESC LIMIT 50`},
		{"attachments", `SELECT id, dispute_id, is_latest, stage_at_upload, created_at FROM attachments ORDER BY created_at DESC LIMIT 50`},
		{"notifications", `SELECT id, kind, status, attempts, created_at FROM notifications ORDER BY created_at DESC LIMIT 50`},
		{"cursors", `SELECT merchant_id, staff_role, last_assigned_staff_id, updated_at FROM staff_assignment_cursors ORDER BY updated_at DESC LIMIT 10`},
	}
	for _, d := range dumps {
		rows, err := pool.Query(ctx, d.sql)
		if err != nil {
			t.Logf("dump %s error: %v", d.name, err)
			continue
		}
		cols := rows.FieldDescriptions()
		t.Logf("-- %s --", d.name)
		for rows.Next() {
			vals, _ := rows.Values()
			// compact print
			buf := make([]any, 0, len(vals))
			for i := range vals {
				buf = append(buf, fmt.Sprintf("%s=%v", string(cols[i].Name), vals[i]))
			}
			t.Logf("%s", buf)
		}
		rows.Close()
	}
}
