package cli

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"redeploy/internal/config"
	"redeploy/internal/deploy"
	"redeploy/internal/history"
	"redeploy/internal/logging"
	"redeploy/internal/output"
)

type testEnv struct {
	app       *App
	commander *MockCommander
	out       *bytes.Buffer
	history   *history.Store
}

func newTestEnv(t *testing.T, commander *MockCommander) *testEnv {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Deploy.InstallDir = createCheckout(t)
	cfg.Deploy.VenvDir = "/venv"
	cfg.Deploy.HealthDelay = 0

	out := &bytes.Buffer{}
	log := logging.New(&bytes.Buffer{}, "info")
	store := history.NewStore(filepath.Join(t.TempDir(), "history.yaml"), 50)

	app := &App{
		Config:   cfg,
		Executor: deploy.NewExecutor(deploy.NewPlan(cfg), commander, log),
		Printer:  output.NewPrinterWithWriter(out),
		History:  store,
		Logger:   log,
	}
	return &testEnv{app: app, commander: commander, out: out, history: store}
}

func (e *testEnv) execute(args ...string) error {
	rootCmd := NewRootCommand(e.app)
	buf := &bytes.Buffer{}
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	// nil args would make cobra fall back to os.Args
	rootCmd.SetArgs(append([]string{}, args...))
	return rootCmd.Execute()
}

func journal(n int) string {
	var b strings.Builder
	for i := 1; i <= n; i++ {
		fmt.Fprintf(&b, "journal-line-%03d\n", i)
	}
	return b.String()
}

func TestDeployCommand(t *testing.T) {
	tests := []struct {
		name        string
		args        []string
		failOn      map[string]int
		wantCode    int
		wantOutput  []string
		wantCalled  []string
		notCalled   []string
		wantOutcome history.Outcome
		wantStage   string
	}{
		{
			name:        "root command deploys",
			args:        nil,
			wantOutput:  []string{"[1/4] sync", "[4/4] verify", "DEPLOY SUCCESSFUL", "Revision: 4f2a9c1"},
			wantCalled:  []string{"git fetch", "/venv/bin/pip install -r", "systemctl restart workcafe", "systemctl is-active"},
			wantOutcome: history.OutcomeSuccess,
		},
		{
			name:        "run subcommand deploys",
			args:        []string{"run"},
			wantOutput:  []string{"DEPLOY SUCCESSFUL"},
			wantCalled:  []string{"systemctl is-active"},
			wantOutcome: history.OutcomeSuccess,
		},
		{
			name:        "unreachable remote stops before install",
			args:        []string{"run"},
			failOn:      map[string]int{"git fetch": 128},
			wantCode:    128,
			wantOutput:  []string{"DEPLOY FAILED", "git fetch origin main"},
			notCalled:   []string{"/venv/bin/pip", "systemctl"},
			wantOutcome: history.OutcomeFailed,
			wantStage:   "sync",
		},
		{
			name:        "malformed manifest stops before restart",
			failOn:      map[string]int{"/venv/bin/pip install -r": 1},
			wantCode:    1,
			wantOutput:  []string{"DEPLOY FAILED"},
			wantCalled:  []string{"/venv/bin/pip install --upgrade pip"},
			notCalled:   []string{"systemctl"},
			wantOutcome: history.OutcomeFailed,
			wantStage:   "install",
		},
		{
			name:        "rejected restart stops before verify",
			failOn:      map[string]int{"systemctl restart": 5},
			wantCode:    5,
			notCalled:   []string{"systemctl is-active", "journalctl"},
			wantOutcome: history.OutcomeFailed,
			wantStage:   "restart",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			commander := &MockCommander{
				FailOn: tt.failOn,
				Output: map[string]string{"git rev-parse": "4f2a9c1\n"},
			}
			env := newTestEnv(t, commander)

			err := env.execute(tt.args...)

			if tt.wantCode == 0 {
				require.NoError(t, err)
			} else {
				require.Error(t, err)
				code, ok := IsExitError(err)
				assert.True(t, ok, "error should be an ExitError")
				assert.Equal(t, tt.wantCode, code)
			}

			for _, s := range tt.wantOutput {
				assert.Contains(t, env.out.String(), s)
			}
			for _, prefix := range tt.wantCalled {
				assert.True(t, commander.CalledWith(prefix), "%q should have run", prefix)
			}
			for _, prefix := range tt.notCalled {
				assert.False(t, commander.CalledWith(prefix), "%q must not run", prefix)
			}

			records, err := env.history.Read()
			require.NoError(t, err)
			require.Len(t, records, 1)
			assert.Equal(t, tt.wantOutcome, records[0].Outcome)
			assert.Equal(t, tt.wantStage, records[0].FailedStage)
			assert.Equal(t, tt.wantCode, records[0].ExitCode)
		})
	}
}

func TestDeployCommand_Unhealthy(t *testing.T) {
	commander := &MockCommander{
		FailOn: map[string]int{"systemctl is-active": 3},
		Output: map[string]string{"journalctl": journal(45)},
	}
	env := newTestEnv(t, commander)

	err := env.execute()

	require.Error(t, err)
	code, ok := IsExitError(err)
	require.True(t, ok)
	assert.Equal(t, 1, code)

	out := env.out.String()
	assert.Equal(t, 30, strings.Count(out, "journal-line-"), "exactly the last 30 journal lines are printed")
	assert.NotContains(t, out, "journal-line-015")
	assert.Contains(t, out, "journal-line-016")
	assert.Contains(t, out, "journal-line-045")
	assert.Contains(t, out, "DEPLOY FAILED")
	assert.True(t, commander.CalledWith("journalctl -u workcafe -n 30 --no-pager"))

	records, err := env.history.Read()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "verify", records[0].FailedStage)
	assert.Equal(t, 1, records[0].ExitCode)
}

func TestDeployCommand_NotACheckout(t *testing.T) {
	commander := &MockCommander{}
	env := newTestEnv(t, commander)
	env.app.Executor = deploy.NewExecutor(deploy.NewPlan(func() *config.Config {
		cfg := *env.app.Config
		cfg.Deploy.InstallDir = t.TempDir()
		return &cfg
	}()), commander, nil)

	err := env.execute()

	code, ok := IsExitError(err)
	require.True(t, ok)
	assert.Equal(t, 1, code)
	assert.Empty(t, commander.Calls)
	assert.Contains(t, env.out.String(), "not a git checkout")
}

func TestDeployCommand_RunTwice(t *testing.T) {
	commander := &MockCommander{Output: map[string]string{"git rev-parse": "4f2a9c1\n"}}
	env := newTestEnv(t, commander)

	require.NoError(t, env.execute())
	first := append([]string(nil), commander.Calls...)
	commander.Calls = nil

	require.NoError(t, env.execute())

	assert.Equal(t, first, commander.Calls)
	records, err := env.history.Last(0)
	require.NoError(t, err)
	require.Len(t, records, 2)
	for _, r := range records {
		assert.Equal(t, history.OutcomeSuccess, r.Outcome)
		assert.Equal(t, "4f2a9c1", r.Revision)
	}
}

func TestStageCommands(t *testing.T) {
	tests := []struct {
		stage     string
		wantCalls []string
	}{
		{stage: "sync", wantCalls: []string{"git fetch origin main", "git reset --hard origin/main", "git rev-parse HEAD"}},
		{stage: "restart", wantCalls: []string{"systemctl daemon-reload", "systemctl restart workcafe"}},
		{stage: "verify", wantCalls: []string{"systemctl is-active --quiet workcafe"}},
	}

	for _, tt := range tests {
		t.Run(tt.stage, func(t *testing.T) {
			commander := &MockCommander{}
			env := newTestEnv(t, commander)

			err := env.execute(tt.stage)

			require.NoError(t, err)
			assert.Equal(t, tt.wantCalls, commander.Calls)
			assert.Contains(t, env.out.String(), "[1/1] "+tt.stage)
		})
	}
}

func TestStageCommand_Install(t *testing.T) {
	commander := &MockCommander{}
	env := newTestEnv(t, commander)

	require.NoError(t, env.execute("install"))

	require.Len(t, commander.Calls, 2)
	assert.Equal(t, "/venv/bin/pip install --upgrade pip", commander.Calls[0])
	assert.Equal(t, "/venv/bin/pip install -r "+filepath.Join(env.app.Config.Deploy.InstallDir, "requirements.txt"), commander.Calls[1])
}

func TestPlanCommand(t *testing.T) {
	commander := &MockCommander{}
	env := newTestEnv(t, commander)

	require.NoError(t, env.execute("plan"))

	assert.Empty(t, commander.Calls, "plan runs nothing")
	out := env.out.String()
	assert.Contains(t, out, "$ git fetch origin main")
	assert.Contains(t, out, "$ systemctl is-active --quiet workcafe")
	assert.Contains(t, out, "$ journalctl -u workcafe -n 30 --no-pager")
}

func TestHistoryCommand(t *testing.T) {
	commander := &MockCommander{Output: map[string]string{"git rev-parse": "4f2a9c1\n"}}
	env := newTestEnv(t, commander)
	require.NoError(t, env.execute())
	commander.FailOn = map[string]int{"/venv/bin/pip install -r": 1}
	require.Error(t, env.execute())
	env.out.Reset()

	require.NoError(t, env.execute("history", "-n", "5"))

	out := env.out.String()
	assert.Contains(t, out, "4f2a9c1")
	assert.Contains(t, out, "failed at install (exit 1)")
	assert.Less(t, strings.Index(out, "failed at install"), strings.Index(out, "4f2a9c1"), "newest first")
}

func TestHistoryCommand_Disabled(t *testing.T) {
	env := newTestEnv(t, &MockCommander{})
	env.app.History = nil

	err := env.execute("history")

	code, ok := IsExitError(err)
	require.True(t, ok)
	assert.Equal(t, 1, code)
	assert.Contains(t, env.out.String(), "history is disabled")
}

func TestRootCommand_LogLevelFlag(t *testing.T) {
	env := newTestEnv(t, &MockCommander{})

	require.NoError(t, env.execute("--log-level", "debug", "plan"))

	assert.Equal(t, logrus.DebugLevel, env.app.Logger.GetLevel())
}

func TestRootCommand_RejectsArgs(t *testing.T) {
	commander := &MockCommander{}
	env := newTestEnv(t, commander)

	err := env.execute("now")

	assert.Error(t, err)
	assert.Empty(t, commander.Calls)
}

func TestNewApp(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.History.Path = filepath.Join(t.TempDir(), "history.yaml")

	app := NewApp(cfg, &bytes.Buffer{}, &bytes.Buffer{})

	assert.NotNil(t, app.Executor)
	assert.NotNil(t, app.Printer)
	assert.NotNil(t, app.History)
	assert.Equal(t, cfg.History.Path, app.History.Path())
	assert.Equal(t, "/opt/workcafe", app.Executor.Plan().WorkDir)

	cfg.History.Path = ""
	assert.Nil(t, NewApp(cfg, &bytes.Buffer{}, &bytes.Buffer{}).History)
}

func TestIsExitError(t *testing.T) {
	code, ok := IsExitError(NewExitError(128))
	assert.True(t, ok)
	assert.Equal(t, 128, code)

	code, ok = IsExitError(fmt.Errorf("wrapped: %w", NewExitError(2)))
	assert.True(t, ok)
	assert.Equal(t, 2, code)

	_, ok = IsExitError(nil)
	assert.False(t, ok)

	assert.Equal(t, "exit status 3", NewExitError(3).Error())
}
