package scheduler

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zkfleet/zkfleet/pkg/cluster"
	"github.com/zkfleet/zkfleet/pkg/constraint"
	"github.com/zkfleet/zkfleet/pkg/driver"
	"github.com/zkfleet/zkfleet/pkg/log"
	"github.com/zkfleet/zkfleet/pkg/storage"
	"github.com/zkfleet/zkfleet/pkg/types"
)

func init() {
	log.Init(log.Config{Level: log.ErrorLevel})
}

// fakeDriver records launch/kill calls
type fakeDriver struct {
	launched  []*driver.TaskInfo
	killed    []string
	launchErr error
}

func (d *fakeDriver) LaunchTask(task *driver.TaskInfo) error {
	if d.launchErr != nil {
		return d.launchErr
	}
	d.launched = append(d.launched, task)
	return nil
}

func (d *fakeDriver) KillTask(taskID string) error {
	d.killed = append(d.killed, taskID)
	return nil
}

type testEnv struct {
	engine *Engine
	driver *fakeDriver
	store  storage.Store
	now    time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store := storage.NewFileStore(filepath.Join(t.TempDir(), "cluster.json"))
	drv := &fakeDriver{}
	engine, err := NewEngine(store, drv, nil, Config{
		FailoverDelay:    1 * time.Second,
		FailoverMaxDelay: 5 * time.Second,
		StickinessPeriod: 10 * time.Minute,
	})
	require.NoError(t, err)

	env := &testEnv{
		engine: engine,
		driver: drv,
		store:  store,
		now:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	engine.now = func() time.Time { return env.now }
	return env
}

func (env *testEnv) addStopped(t *testing.T, id string, config types.TaskConfig, constraints map[string][]constraint.Constraint) {
	t.Helper()
	_, err := env.engine.AddServer(id, config, constraints)
	require.NoError(t, err)
	_, err = env.engine.StartServer(id)
	require.NoError(t, err)
}

func testOffer() *types.Offer {
	return &types.Offer{
		ID:       "offer-1",
		Hostname: "slave0",
		CPUs:     2,
		Mem:      4096,
		Ports:    types.PortRanges{{Start: 31000, End: 32000}},
	}
}

func basicConfig() types.TaskConfig {
	return types.TaskConfig{CPUs: 0.5, Mem: 512}
}

// TestAcceptOfferNoCandidates tests the idle-fleet decline
func TestAcceptOfferNoCandidates(t *testing.T) {
	env := newTestEnv(t)

	assert.Equal(t, "all servers are running", env.engine.AcceptOffer(testOffer()))
	assert.Empty(t, env.driver.launched)

	// Added but not started servers are excluded from scheduling
	_, err := env.engine.AddServer("zk-0", basicConfig(), nil)
	require.NoError(t, err)
	assert.Equal(t, "all servers are running", env.engine.AcceptOffer(testOffer()))
	assert.Empty(t, env.driver.launched)
}

// TestAcceptOfferLaunches tests the happy launch path
func TestAcceptOfferLaunches(t *testing.T) {
	env := newTestEnv(t)
	env.addStopped(t, "zk-0", basicConfig(), nil)

	reason := env.engine.AcceptOffer(testOffer())
	assert.Equal(t, "", reason, "offer must be consumed")
	require.Len(t, env.driver.launched, 1)

	info := env.driver.launched[0]
	assert.Equal(t, "offer-1", info.OfferID)
	assert.Equal(t, "slave0", info.Hostname)
	assert.Equal(t, 0.5, info.CPUs)
	assert.Equal(t, float64(512), info.Mem)
	assert.Equal(t, 31000, info.Port)
	assert.Equal(t, "zk-0", info.Config.ID)

	status := env.engine.Status()
	require.Len(t, status, 1)
	assert.Equal(t, cluster.StateStaging, status[0].State)
	assert.Equal(t, "slave0", status[0].Stickiness.Hostname)
	require.NotNil(t, status[0].Task)
	assert.Equal(t, info.ID, status[0].Task.ID)

	// The launch was persisted inside the lock
	restored := cluster.New()
	found, err := env.store.Load(restored)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, cluster.StateStaging, restored.Servers()[0].State)

	// One task per offer: a second identical offer finds nobody stopped
	assert.Equal(t, "all servers are running", env.engine.AcceptOffer(testOffer()))
	assert.Len(t, env.driver.launched, 1)
}

// TestAcceptOfferFirstMatchWins tests registration-order candidate choice
func TestAcceptOfferFirstMatchWins(t *testing.T) {
	env := newTestEnv(t)
	env.addStopped(t, "zk-1", basicConfig(), nil)
	env.addStopped(t, "zk-0", basicConfig(), nil)

	assert.Equal(t, "", env.engine.AcceptOffer(testOffer()))
	require.Len(t, env.driver.launched, 1)
	assert.Contains(t, env.driver.launched[0].ID, "zk-1", "first registered server wins")
}

// TestAcceptOfferResourceFit tests cpu/mem rejection reasons
func TestAcceptOfferResourceFit(t *testing.T) {
	env := newTestEnv(t)
	env.addStopped(t, "zk-0", types.TaskConfig{CPUs: 4, Mem: 512}, nil)

	assert.Equal(t, "cpus 2.00 < 4.00", env.engine.AcceptOffer(testOffer()))
	assert.Empty(t, env.driver.launched)

	_, err := env.engine.UpdateServer("zk-0", types.TaskConfig{CPUs: 0.5, Mem: 8192}, nil)
	require.NoError(t, err)
	assert.Equal(t, "mem 4096.00 < 8192.00", env.engine.AcceptOffer(testOffer()))
	assert.Empty(t, env.driver.launched)
}

// TestAcceptOfferConstraints tests constraint-driven rejection
func TestAcceptOfferConstraints(t *testing.T) {
	env := newTestEnv(t)
	env.addStopped(t, "zk-0", basicConfig(), map[string][]constraint.Constraint{
		"hostname": {constraint.MustParse("like:master.*")},
	})

	assert.Equal(t, "hostname doesn't match like:master.*", env.engine.AcceptOffer(testOffer()))
	assert.Empty(t, env.driver.launched)

	master := testOffer()
	master.Hostname = "master-2"
	assert.Equal(t, "", env.engine.AcceptOffer(master))
	assert.Len(t, env.driver.launched, 1)
}

// TestAcceptOfferUniqueHostname tests that two servers with a unique
// hostname constraint never share a host
func TestAcceptOfferUniqueHostname(t *testing.T) {
	env := newTestEnv(t)
	unique := map[string][]constraint.Constraint{"hostname": {constraint.MustParse("unique")}}
	env.addStopped(t, "zk-0", basicConfig(), unique)
	env.addStopped(t, "zk-1", basicConfig(), unique)

	assert.Equal(t, "", env.engine.AcceptOffer(testOffer()))
	require.Len(t, env.driver.launched, 1)

	// Same host again: zk-1 must refuse it
	assert.Equal(t, "hostname is not unique", env.engine.AcceptOffer(testOffer()))
	assert.Len(t, env.driver.launched, 1)

	other := testOffer()
	other.ID, other.Hostname = "offer-2", "slave1"
	assert.Equal(t, "", env.engine.AcceptOffer(other))
	assert.Len(t, env.driver.launched, 2)
}

// TestAcceptOfferPortAllocation tests configured-range port selection
// through the full offer path
func TestAcceptOfferPortAllocation(t *testing.T) {
	env := newTestEnv(t)
	config := basicConfig()
	config.Ports = types.PortRanges{{Start: 4000, End: 4100}}
	env.addStopped(t, "zk-0", config, nil)

	assert.Equal(t, "no suitable port", env.engine.AcceptOffer(testOffer()))
	assert.Empty(t, env.driver.launched)
}

// TestSelectPort tests the port allocation algorithm
func TestSelectPort(t *testing.T) {
	offered := types.PortRanges{{Start: 31000, End: 32000}}

	tests := []struct {
		name       string
		configured string
		offered    types.PortRanges
		port       int
		ok         bool
	}{
		{name: "no config takes first offered", configured: "", offered: offered, port: 31000, ok: true},
		{name: "single port", configured: "31010", offered: offered, port: 31010, ok: true},
		{name: "first range misses, second hits", configured: "4000..4100,31020..31100", offered: offered, port: 31020, ok: true},
		{name: "no intersection", configured: "4000..4100", offered: offered, ok: false},
		{name: "config wider than offer", configured: "30000..40000", offered: offered, port: 31000, ok: true},
		{name: "nothing offered", configured: "", offered: nil, ok: false},
		{name: "lowest across offered ranges", configured: "100..40000", offered: types.PortRanges{{Start: 31000, End: 32000}, {Start: 20000, End: 20010}}, port: 20000, ok: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configured, err := types.ParsePortRanges(tt.configured)
			require.NoError(t, err)

			port, ok := selectPort(configured, tt.offered)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.port, port)
			}
		})
	}
}

// TestTaskLifecycle tests staging confirmation and failure handling
func TestTaskLifecycle(t *testing.T) {
	env := newTestEnv(t)
	env.addStopped(t, "zk-0", basicConfig(), nil)

	require.Equal(t, "", env.engine.AcceptOffer(testOffer()))
	taskID := env.driver.launched[0].ID

	env.engine.UpdateTaskStatus(driver.StatusUpdate{TaskID: taskID, State: driver.TaskRunning})
	status := env.engine.Status()
	assert.Equal(t, cluster.StateRunning, status[0].State)
	assert.Equal(t, 0, status[0].Failover.Failures)

	env.engine.UpdateTaskStatus(driver.StatusUpdate{TaskID: taskID, State: driver.TaskFailed, Message: "oom"})
	status = env.engine.Status()
	assert.Equal(t, cluster.StateStopped, status[0].State)
	assert.Equal(t, 1, status[0].Failover.Failures)
	assert.Nil(t, status[0].Task)
}

// TestFailoverDelayGatesRelaunch tests the backoff window between launches
func TestFailoverDelayGatesRelaunch(t *testing.T) {
	env := newTestEnv(t)
	env.addStopped(t, "zk-0", basicConfig(), nil)

	require.Equal(t, "", env.engine.AcceptOffer(testOffer()))
	env.engine.UpdateTaskStatus(driver.StatusUpdate{TaskID: env.driver.launched[0].ID, State: driver.TaskFailed})

	// Inside the 1s backoff window the server is skipped
	reason := env.engine.AcceptOffer(testOffer())
	assert.Contains(t, reason, "waiting for failover delay")
	assert.Len(t, env.driver.launched, 1)

	// At the boundary the window is closed and the relaunch goes out
	env.now = env.now.Add(1 * time.Second)
	assert.Equal(t, "", env.engine.AcceptOffer(testOffer()))
	assert.Len(t, env.driver.launched, 2)
}

// TestMaxTriesPermanentSkip tests the terminal-failure gate
func TestMaxTriesPermanentSkip(t *testing.T) {
	env := newTestEnv(t)
	maxTries := 2
	env.engine.cfg.FailoverMaxTries = &maxTries
	env.addStopped(t, "zk-0", basicConfig(), nil)

	for i := 0; i < 2; i++ {
		env.now = env.now.Add(time.Minute)
		require.Equal(t, "", env.engine.AcceptOffer(testOffer()), "launch %d", i)
		env.engine.UpdateTaskStatus(driver.StatusUpdate{TaskID: env.driver.launched[len(env.driver.launched)-1].ID, State: driver.TaskFailed})
	}

	env.now = env.now.Add(time.Hour)
	reason := env.engine.AcceptOffer(testOffer())
	assert.Contains(t, reason, "manual intervention required")
	assert.Len(t, env.driver.launched, 2)

	// It stays Stopped; no automatic state change
	assert.Equal(t, cluster.StateStopped, env.engine.Status()[0].State)
}

// TestStickinessAcrossRestart tests host affinity after an operator stop
func TestStickinessAcrossRestart(t *testing.T) {
	env := newTestEnv(t)
	env.addStopped(t, "zk-0", basicConfig(), nil)

	require.Equal(t, "", env.engine.AcceptOffer(testOffer()))
	taskID := env.driver.launched[0].ID
	env.engine.UpdateTaskStatus(driver.StatusUpdate{TaskID: taskID, State: driver.TaskRunning})

	_, err := env.engine.StopServer("zk-0")
	require.NoError(t, err)
	assert.Equal(t, []string{taskID}, env.driver.killed)
	env.engine.UpdateTaskStatus(driver.StatusUpdate{TaskID: taskID, State: driver.TaskKilled})

	// The operator stop is not a failure
	status := env.engine.Status()
	assert.Equal(t, cluster.StateAdded, status[0].State)
	assert.Equal(t, 0, status[0].Failover.Failures)

	_, err = env.engine.StartServer("zk-0")
	require.NoError(t, err)

	// Inside the affinity window only slave0 will do
	other := testOffer()
	other.Hostname = "slave1"
	reason := env.engine.AcceptOffer(other)
	assert.Equal(t, "hostname slave1 doesn't match stickiness host slave0", reason)

	assert.Equal(t, "", env.engine.AcceptOffer(testOffer()))

	// After the window any host does
	_, err = env.engine.StopServer("zk-0")
	require.NoError(t, err)
	env.engine.UpdateTaskStatus(driver.StatusUpdate{TaskID: env.driver.launched[1].ID, State: driver.TaskKilled})
	_, err = env.engine.StartServer("zk-0")
	require.NoError(t, err)

	env.now = env.now.Add(10 * time.Minute)
	assert.Equal(t, "", env.engine.AcceptOffer(other))
}

// TestStickinessAfterFailure tests that a crashed server prefers its old
// host only for the affinity window
func TestStickinessAfterFailure(t *testing.T) {
	env := newTestEnv(t)
	env.addStopped(t, "zk-0", basicConfig(), nil)

	require.Equal(t, "", env.engine.AcceptOffer(testOffer()))
	env.engine.UpdateTaskStatus(driver.StatusUpdate{TaskID: env.driver.launched[0].ID, State: driver.TaskFailed})

	// Past the backoff but inside the affinity window: only slave0 will do
	env.now = env.now.Add(time.Minute)
	other := testOffer()
	other.Hostname = "slave1"
	assert.Equal(t, "hostname slave1 doesn't match stickiness host slave0", env.engine.AcceptOffer(other))

	env.now = env.now.Add(10 * time.Minute)
	assert.Equal(t, "", env.engine.AcceptOffer(other))
	assert.Len(t, env.driver.launched, 2)
}

// TestAdminLifecycle tests add/update/start/stop/remove validation
func TestAdminLifecycle(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.engine.AddServer("", basicConfig(), nil)
	assert.Error(t, err)

	_, err = env.engine.AddServer("zk-0", types.TaskConfig{}, nil)
	assert.Error(t, err, "zero resources must be rejected")

	added, err := env.engine.AddServer("zk-0", basicConfig(), nil)
	require.NoError(t, err)
	assert.Equal(t, cluster.StateAdded, added.State)

	_, err = env.engine.AddServer("zk-0", basicConfig(), nil)
	assert.Error(t, err, "duplicate id must be rejected")

	_, err = env.engine.StartServer("zk-0")
	require.NoError(t, err)
	_, err = env.engine.StartServer("zk-0")
	assert.Error(t, err, "double start must be rejected")

	_, err = env.engine.StopServer("missing")
	assert.Error(t, err)

	// Active servers cannot be removed
	require.Equal(t, "", env.engine.AcceptOffer(testOffer()))
	assert.Error(t, env.engine.RemoveServer("zk-0"))

	_, err = env.engine.StopServer("zk-0")
	require.NoError(t, err)
	require.NoError(t, env.engine.RemoveServer("zk-0"))
	assert.Empty(t, env.engine.Status())
	assert.Error(t, env.engine.RemoveServer("zk-0"))
}

// TestStatusReturnsSnapshots tests that admin results do not alias engine
// state
func TestStatusReturnsSnapshots(t *testing.T) {
	env := newTestEnv(t)
	env.addStopped(t, "zk-0", basicConfig(), nil)

	status := env.engine.Status()
	status[0].State = cluster.StateRunning
	status[0].Config.CPUs = 99

	fresh := env.engine.Status()
	assert.Equal(t, cluster.StateStopped, fresh[0].State)
	assert.Equal(t, 0.5, fresh[0].Config.CPUs)
}

// TestEngineRestoresState tests that a new engine picks up the persisted
// fleet
func TestEngineRestoresState(t *testing.T) {
	env := newTestEnv(t)
	env.addStopped(t, "zk-0", basicConfig(), map[string][]constraint.Constraint{
		"hostname": {constraint.MustParse("unique")},
	})
	require.Equal(t, "", env.engine.AcceptOffer(testOffer()))

	restarted, err := NewEngine(env.store, env.driver, nil, Config{
		FailoverDelay:    1 * time.Second,
		FailoverMaxDelay: 5 * time.Second,
		StickinessPeriod: 10 * time.Minute,
	})
	require.NoError(t, err)

	status := restarted.Status()
	require.Len(t, status, 1)
	assert.Equal(t, "zk-0", status[0].ID)
	assert.Equal(t, cluster.StateStaging, status[0].State)
	require.NotNil(t, status[0].Task)
	assert.Equal(t, "slave0", status[0].Task.Hostname)
	assert.Equal(t, map[string][]string{"hostname": {"unique"}}, constraint.FormatMap(status[0].Constraints))
}

// TestReconcileStaging tests the stuck-staging timeout
func TestReconcileStaging(t *testing.T) {
	env := newTestEnv(t)
	env.addStopped(t, "zk-0", basicConfig(), nil)
	require.Equal(t, "", env.engine.AcceptOffer(testOffer()))
	taskID := env.driver.launched[0].ID

	// Not stuck yet
	env.now = env.now.Add(30 * time.Second)
	env.engine.ReconcileStaging(time.Minute)
	assert.Empty(t, env.driver.killed)
	assert.Equal(t, cluster.StateStaging, env.engine.Status()[0].State)

	env.now = env.now.Add(31 * time.Second)
	env.engine.ReconcileStaging(time.Minute)
	assert.Equal(t, []string{taskID}, env.driver.killed)

	status := env.engine.Status()
	assert.Equal(t, cluster.StateStopped, status[0].State)
	assert.Equal(t, 1, status[0].Failover.Failures)
	assert.Nil(t, status[0].Task)

	// A late terminal update for the abandoned task is a no-op
	env.engine.UpdateTaskStatus(driver.StatusUpdate{TaskID: taskID, State: driver.TaskKilled})
	assert.Equal(t, 1, env.engine.Status()[0].Failover.Failures)
}

// TestStateCounts tests the metrics source
func TestStateCounts(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.engine.AddServer("zk-0", basicConfig(), nil)
	require.NoError(t, err)
	env.addStopped(t, "zk-1", basicConfig(), nil)
	env.addStopped(t, "zk-2", basicConfig(), nil)
	require.Equal(t, "", env.engine.AcceptOffer(testOffer()))

	assert.Equal(t, map[string]int{
		"added":   1,
		"stopped": 1,
		"staging": 1,
	}, env.engine.StateCounts())
}
