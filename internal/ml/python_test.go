package ml

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"btc-direction/internal/features"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const namedSchemaResponse = `{"feature_names":["lag_1","lag_2","pct_change","rolling_mean_3","rolling_std_3"],"classes":[0,1],"n_features":5}`

func requireShell(t *testing.T) string {
	t.Helper()
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not available")
	}
	return sh
}

// writeWorker writes a shell stand-in for the Python worker. It answers the
// schema request with schemaResp and runs predictCmd for every other line.
func writeWorker(t *testing.T, dir, schemaResp, predictCmd string) string {
	t.Helper()
	script := "while IFS= read -r line; do\n" +
		"  case \"$line\" in\n" +
		"    *'\"op\":\"schema\"'*) echo '" + schemaResp + "' ;;\n" +
		"    *) " + predictCmd + " ;;\n" +
		"  esac\n" +
		"done\n"
	path := filepath.Join(dir, "worker.sh")
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func reply(body string) string {
	return "echo '" + body + "'"
}

func newFakeClassifier(t *testing.T, schemaResp, predictCmd string, timeout time.Duration) (*PythonClassifier, error) {
	t.Helper()
	sh := requireShell(t)
	dir := t.TempDir()
	model := filepath.Join(dir, "model.pkl")
	require.NoError(t, os.WriteFile(model, []byte("artifact"), 0o600))

	return NewPythonClassifier(context.Background(), Config{
		ModelPath:  model,
		PythonPath: sh,
		ScriptPath: writeWorker(t, dir, schemaResp, predictCmd),
		Timeout:    timeout,
	})
}

func TestPythonClassifier_SchemaAndPredict(t *testing.T) {
	c, err := newFakeClassifier(t, namedSchemaResponse, reply(`{"probabilities":[0.3,0.7],"prediction":1}`), 2*time.Second)
	require.NoError(t, err)
	defer c.Close()

	assert.Equal(t, "python", c.Name())
	assert.Equal(t, features.DefaultSchema(), c.Schema())

	for i := 0; i < 3; i++ {
		probs, err := c.PredictProba(context.Background(), []float64{110, 100, 0.1, 100, 10})
		require.NoError(t, err)
		assert.Equal(t, []float64{0.3, 0.7}, probs)
	}
}

func TestPythonClassifier_ReportsModelSchema(t *testing.T) {
	c, err := newFakeClassifier(t,
		`{"feature_names":["lag_2","lag_1","pct_change","rolling_mean_3","rolling_std_3"],"classes":[0,1]}`,
		reply(`{"probabilities":[0.3,0.7]}`), 2*time.Second)
	require.NoError(t, err)
	defer c.Close()

	p, err := New(c, nil)
	require.NoError(t, err)

	v, err := features.NewVector(features.DefaultSchema(), []float64{110, 100, 0.1, 100, 10})
	require.NoError(t, err)
	_, err = p.Predict(context.Background(), v)
	assert.ErrorIs(t, err, ErrSchemaMismatch)
}

func TestPythonClassifier_UnnamedModelUsesDefaultOrder(t *testing.T) {
	c, err := newFakeClassifier(t, `{"classes":[0,1],"n_features":5}`, reply(`{"probabilities":[0.6,0.4]}`), 2*time.Second)
	require.NoError(t, err)
	defer c.Close()
	assert.Equal(t, features.DefaultSchema(), c.Schema())
}

func TestPythonClassifier_RejectsIncompatibleModels(t *testing.T) {
	testCases := []struct {
		name   string
		schema string
	}{
		{"wrong width", `{"classes":[0,1],"n_features":7}`},
		{"multiclass", `{"feature_names":["a"],"classes":[0,1,2]}`},
		{"worker error", `{"error":"load model: bad pickle"}`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := newFakeClassifier(t, tc.schema, reply(`{"probabilities":[0.5,0.5]}`), 2*time.Second)
			assert.Error(t, err)
		})
	}
}

func TestPythonClassifier_WorkerError(t *testing.T) {
	c, err := newFakeClassifier(t, namedSchemaResponse, reply(`{"error":"predict_proba failed"}`), 2*time.Second)
	require.NoError(t, err)
	defer c.Close()

	_, err = c.PredictProba(context.Background(), []float64{1, 2, 3, 4, 5})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "predict_proba failed")

	// a reported error does not kill the worker
	_, err = c.PredictProba(context.Background(), []float64{1, 2, 3, 4, 5})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "predict_proba failed")
}

func TestPythonClassifier_WrongFeatureCount(t *testing.T) {
	c, err := newFakeClassifier(t, namedSchemaResponse, reply(`{"probabilities":[0.3,0.7]}`), 2*time.Second)
	require.NoError(t, err)
	defer c.Close()

	_, err = c.PredictProba(context.Background(), []float64{1, 2})
	assert.Error(t, err)
}

func TestPythonClassifier_Timeout(t *testing.T) {
	c, err := newFakeClassifier(t, namedSchemaResponse, "sleep 2", 100*time.Millisecond)
	require.NoError(t, err)
	defer c.Close()

	_, err = c.PredictProba(context.Background(), []float64{1, 2, 3, 4, 5})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// the replacement worker hangs as well
	_, err = c.PredictProba(context.Background(), []float64{1, 2, 3, 4, 5})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

// slowOnce sleeps on the first predict only, tracked by a marker file next to
// the worker script so a restarted worker answers immediately.
const slowOnce = `if [ ! -e "$0.slow" ]; then touch "$0.slow"; sleep 1; fi; echo '{"probabilities":[0.3,0.7]}'`

func TestPythonClassifier_RecoversAfterTimeout(t *testing.T) {
	c, err := newFakeClassifier(t, namedSchemaResponse, slowOnce, 200*time.Millisecond)
	require.NoError(t, err)
	defer c.Close()

	_, err = c.PredictProba(context.Background(), []float64{1, 2, 3, 4, 5})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	for i := 0; i < 2; i++ {
		probs, err := c.PredictProba(context.Background(), []float64{1, 2, 3, 4, 5})
		require.NoError(t, err)
		assert.Equal(t, []float64{0.3, 0.7}, probs)
	}
	assert.Equal(t, 1, c.restarts)
	assert.NoError(t, c.Healthy(context.Background()))
}

// countingReply numbers every predict in a file shared across restarts and
// prints a stray non-JSON line before the first reply.
const countingReply = `n=$(cat "$0.n" 2>/dev/null || echo 0); n=$((n+1)); echo $n > "$0.n"; ` +
	`if [ ! -e "$0.once" ]; then touch "$0.once"; echo 'warning: stray print'; fi; ` +
	`echo "{\"probabilities\":[0.$n,0.8]}"`

func TestPythonClassifier_StrayOutputDoesNotShiftReplies(t *testing.T) {
	c, err := newFakeClassifier(t, namedSchemaResponse, countingReply, 2*time.Second)
	require.NoError(t, err)
	defer c.Close()

	_, err = c.PredictProba(context.Background(), []float64{1, 2, 3, 4, 5})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse response")

	// each later call gets its own answer, never the one left behind by call 1
	probs, err := c.PredictProba(context.Background(), []float64{1, 2, 3, 4, 5})
	require.NoError(t, err)
	assert.Equal(t, []float64{0.2, 0.8}, probs)

	probs, err = c.PredictProba(context.Background(), []float64{1, 2, 3, 4, 5})
	require.NoError(t, err)
	assert.Equal(t, []float64{0.3, 0.8}, probs)
}

func TestPythonClassifier_RestartRejectsChangedSchema(t *testing.T) {
	sh := requireShell(t)
	dir := t.TempDir()
	model := filepath.Join(dir, "model.pkl")
	require.NoError(t, os.WriteFile(model, []byte("artifact"), 0o600))

	// the first worker reports the named schema, any later one a reordered one
	schemaCmd := `if [ -e "$0.started" ]; then echo '{"feature_names":["lag_2","lag_1","pct_change","rolling_mean_3","rolling_std_3"],"classes":[0,1]}'; ` +
		`else touch "$0.started"; echo '` + namedSchemaResponse + `'; fi`
	script := "while IFS= read -r line; do\n" +
		"  case \"$line\" in\n" +
		"    *'\"op\":\"schema\"'*) " + schemaCmd + " ;;\n" +
		"    *) exit 3 ;;\n" +
		"  esac\n" +
		"done\n"
	path := filepath.Join(dir, "worker.sh")
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))

	c, err := NewPythonClassifier(context.Background(), Config{
		ModelPath:  model,
		PythonPath: sh,
		ScriptPath: path,
		Timeout:    2 * time.Second,
	})
	require.NoError(t, err)
	defer c.Close()

	// the worker exits on predict, so the next call restarts it
	_, err = c.PredictProba(context.Background(), []float64{1, 2, 3, 4, 5})
	require.Error(t, err)

	_, err = c.PredictProba(context.Background(), []float64{1, 2, 3, 4, 5})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "schema changed")
	assert.Error(t, c.Healthy(context.Background()))
}

func TestPythonClassifier_Healthy(t *testing.T) {
	c, err := newFakeClassifier(t, namedSchemaResponse, reply(`{"probabilities":[0.3,0.7]}`), 2*time.Second)
	require.NoError(t, err)

	assert.NoError(t, c.Healthy(context.Background()))

	require.NoError(t, c.Close())
	assert.ErrorIs(t, c.Healthy(context.Background()), errClassifierClosed)
}

func TestPythonClassifier_CloseIsIdempotent(t *testing.T) {
	c, err := newFakeClassifier(t, namedSchemaResponse, reply(`{"probabilities":[0.3,0.7]}`), 2*time.Second)
	require.NoError(t, err)

	assert.NoError(t, c.Close())
	assert.NoError(t, c.Close())

	_, err = c.PredictProba(context.Background(), []float64{1, 2, 3, 4, 5})
	assert.Error(t, err)
}

func TestNewPythonClassifier_MissingModel(t *testing.T) {
	_, err := NewPythonClassifier(context.Background(), Config{ModelPath: filepath.Join(t.TempDir(), "nope.pkl")})
	assert.Error(t, err)
}

func TestResolveScript_CreatesEmbeddedScript(t *testing.T) {
	dir := t.TempDir()
	path, err := resolveScript("", filepath.Join(dir, "model.pkl"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, embeddedScriptName), path)

	custom := filepath.Join(dir, "direction_inference.py")
	require.NoError(t, os.WriteFile(custom, []byte("#"), 0o644))
	path, err = resolveScript("", filepath.Join(dir, "model.pkl"))
	require.NoError(t, err)
	assert.Equal(t, custom, path)

	_, err = resolveScript(filepath.Join(dir, "missing.py"), "")
	assert.Error(t, err)
}

func TestCreateInferenceScript(t *testing.T) {
	tempDir := t.TempDir()
	scriptPath := filepath.Join(tempDir, "test_inference.py")

	err := createInferenceScript(scriptPath)
	if err != nil {
		t.Fatalf("Failed to create inference script: %v", err)
	}

	info, err := os.Stat(scriptPath)
	if err != nil {
		t.Fatalf("Failed to stat script: %v", err)
	}
	if info.Mode()&0111 == 0 {
		t.Error("Inference script is not executable")
	}

	content, err := os.ReadFile(scriptPath)
	if err != nil {
		t.Fatalf("Failed to read script: %v", err)
	}

	scriptStr := string(content)
	expectedParts := []string{
		"#!/usr/bin/env python3",
		"import joblib",
		"for line in sys.stdin",
		"feature_names_in_",
		"predict_proba",
		"sys.stdout.flush()",
	}
	for _, part := range expectedParts {
		if !strings.Contains(scriptStr, part) {
			t.Errorf("Script missing expected part: %s", part)
		}
	}
}

func TestTailBuffer(t *testing.T) {
	b := newTailBuffer(5)
	b.Write([]byte("abc"))
	b.Write([]byte("defg"))
	assert.Equal(t, "cdefg", b.String())
}
