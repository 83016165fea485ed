package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/legalflow/billing-backend/pkg/migrate"
)

func TestChargesMigrationContainsConstraints(t *testing.T) {
	matches, err := filepath.Glob(filepath.Join("migrations", "*_create_charges.sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no charges migration file found")
	}

	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	content := string(data)

	checks := []string{
		"CREATE TABLE IF NOT EXISTS charges",
		"CHECK (amount_cents > 0)",
		"CHECK (provider_percentage + platform_percentage = 100)",
		"status charge_status NOT NULL DEFAULT 'pending'",
		"ix_charges_status_expires_at",
		"DROP TABLE IF EXISTS charges",
	}

	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestPaymentsMigrationEnforcesOnePaymentPerCharge(t *testing.T) {
	matches, err := filepath.Glob(filepath.Join("migrations", "*_create_payments.sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no payments migration file found")
	}

	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	content := string(data)

	if !strings.Contains(content, "CREATE UNIQUE INDEX IF NOT EXISTS ux_payments_charge_id") {
		t.Errorf("payments migration must keep the unique charge_id index")
	}
	if !strings.Contains(content, "FOREIGN KEY (charge_id) REFERENCES charges(id)") {
		t.Errorf("payments migration must reference charges")
	}
}

func TestOutboxMigrationKeepsDedupIndex(t *testing.T) {
	matches, err := filepath.Glob(filepath.Join("migrations", "*_create_outbox.sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no outbox migration file found")
	}

	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}

	// EmitIfNotExists depends on this partial unique index name.
	if !strings.Contains(string(data), "ux_outbox_events_event_aggregate") {
		t.Errorf("outbox migration must define ux_outbox_events_event_aggregate")
	}
}

func TestMigrationsDirValidates(t *testing.T) {
	if err := migrate.ValidateDir("migrations"); err != nil {
		t.Fatalf("migrations dir failed validation: %v", err)
	}
}
