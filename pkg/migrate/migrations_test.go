package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cipimmobiliare/cip-backend/pkg/migrate"
)

func TestMigrationsDirIsValid(t *testing.T) {
	require.NoError(t, migrate.ValidateDir("migrations"))
}

func readMigration(t *testing.T, suffix string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join("migrations", "*_"+suffix+".sql"))
	require.NoError(t, err)
	require.NotEmpty(t, matches, "no %s migration found", suffix)
	data, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	return string(data)
}

func TestPortfolioMigrationGuardsBalances(t *testing.T) {
	content := readMigration(t, "create_user_portfolios")
	for _, sub := range []string{
		"CREATE TABLE IF NOT EXISTS user_portfolios",
		"CONSTRAINT ux_user_portfolios_user UNIQUE (user_id)",
		"CHECK (free_capital >= 0)",
		"CHECK (profits >= 0)",
		"CHECK (referral_bonus >= 0)",
		"CHECK (invested_capital >= 0)",
		"DROP TABLE IF EXISTS user_portfolios",
	} {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestProjectMigrationPreventsOverselling(t *testing.T) {
	content := readMigration(t, "create_projects")
	require.Contains(t, content, "CHECK (status <> 'active' OR funded_amount <= total_amount)")
	require.Contains(t, content, "CHECK (total_amount > 0)")
}

func TestInvestmentMigrationRestrictsFundSource(t *testing.T) {
	content := readMigration(t, "create_investments")
	require.Contains(t, content, "CHECK (fund_source IN ('free_capital', 'profits', 'referral_bonus'))")
	require.NotContains(t, content, "'invested_capital'")
}

func TestCreateSQLMigrationWritesGooseTemplate(t *testing.T) {
	dir := t.TempDir()
	path, err := migrate.CreateSQLMigration(dir, "Add Project Images")
	require.NoError(t, err)
	require.True(t, strings.HasSuffix(path, "_add_project_images.sql"))
	require.NoError(t, migrate.ValidateDir(dir))
}
