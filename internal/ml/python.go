package ml

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"btc-direction/internal/features"

	"github.com/rs/zerolog/log"
)

const embeddedScriptName = "direction_inference_embedded.py"

type inferenceRequest struct {
	Op       string    `json:"op"`
	Features []float64 `json:"features,omitempty"`
}

type inferenceResponse struct {
	Probabilities []float64 `json:"probabilities,omitempty"`
	Prediction    int       `json:"prediction"`
	FeatureNames  []string  `json:"feature_names,omitempty"`
	Classes       []int     `json:"classes,omitempty"`
	NFeatures     int       `json:"n_features,omitempty"`
	Error         string    `json:"error,omitempty"`
}

var errClassifierClosed = errors.New("classifier closed")

// PythonClassifier serves a joblib/pickle sklearn artifact through a single
// long-lived Python worker. The worker loads the model once and answers one
// JSON line per request line. Calls are serialized.
//
// A worker that times out, crashes or writes something other than a JSON
// reply is killed, and the next call starts a fresh one.
type PythonClassifier struct {
	mu         sync.Mutex
	cmd        *exec.Cmd
	stdin      io.WriteCloser
	stdout     *bufio.Reader
	stderr     *tailBuffer
	dead       error // why the current worker was stopped; nil while it runs
	closed     bool
	restarts   int
	schema     features.Schema
	timeout    time.Duration
	modelPath  string
	pythonPath string
	scriptPath string
}

// NewPythonClassifier starts the worker and asks it for the model schema.
func NewPythonClassifier(ctx context.Context, cfg Config) (*PythonClassifier, error) {
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, fmt.Errorf("model file not accessible: %w", err)
	}

	pythonPath, err := findPython(cfg.PythonPath)
	if err != nil {
		return nil, err
	}

	scriptPath, err := resolveScript(cfg.ScriptPath, cfg.ModelPath)
	if err != nil {
		return nil, err
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	c := &PythonClassifier{
		timeout:    timeout,
		modelPath:  cfg.ModelPath,
		pythonPath: pythonPath,
		scriptPath: scriptPath,
		stderr:     newTailBuffer(4096),
	}
	if err := c.start(); err != nil {
		return nil, err
	}

	resp, err := c.exchange(ctx, inferenceRequest{Op: "schema"})
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("schema request: %w", err)
	}

	schema, err := schemaFromResponse(resp)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.schema = schema

	return c, nil
}

func (c *PythonClassifier) Name() string { return "python" }

func (c *PythonClassifier) Schema() features.Schema {
	out := make(features.Schema, len(c.schema))
	copy(out, c.schema)
	return out
}

func (c *PythonClassifier) PredictProba(ctx context.Context, values []float64) ([]float64, error) {
	if len(values) != len(c.schema) {
		return nil, fmt.Errorf("expected %d features, got %d", len(c.schema), len(values))
	}

	resp, err := c.roundTrip(ctx, inferenceRequest{Op: "predict", Features: values})
	if err != nil {
		return nil, err
	}
	if len(resp.Probabilities) == 2 && argmax(resp.Probabilities) != resp.Prediction {
		log.Debug().
			Int("prediction", resp.Prediction).
			Floats64("probabilities", resp.Probabilities).
			Msg("model predict disagrees with predict_proba argmax")
	}
	return resp.Probabilities, nil
}

// Healthy reports whether the worker answers a schema request, restarting it
// first when a previous call stopped it.
func (c *PythonClassifier) Healthy(ctx context.Context) error {
	_, err := c.roundTrip(ctx, inferenceRequest{Op: "schema"})
	return err
}

// Close stops the worker. The classifier cannot be used afterwards.
func (c *PythonClassifier) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	if c.dead != nil {
		return nil
	}
	c.dead = errClassifierClosed
	c.stdin.Close()
	return waitWorker(c.cmd)
}

func (c *PythonClassifier) start() error {
	cmd := exec.Command(c.pythonPath, c.scriptPath, c.modelPath)
	cmd.Stderr = c.stderr
	cmd.WaitDelay = time.Second

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start inference worker: %w", err)
	}

	c.cmd = cmd
	c.stdin = stdin
	c.stdout = bufio.NewReader(stdout)

	log.Debug().
		Str("python_path", c.pythonPath).
		Str("script_path", c.scriptPath).
		Int("pid", cmd.Process.Pid).
		Msg("inference worker started")
	return nil
}

type lineResult struct {
	line []byte
	err  error
}

func (c *PythonClassifier) roundTrip(ctx context.Context, req inferenceRequest) (inferenceResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return inferenceResponse{}, fmt.Errorf("inference worker unavailable: %w", errClassifierClosed)
	}
	if c.dead != nil {
		if err := c.restart(ctx); err != nil {
			return inferenceResponse{}, fmt.Errorf("inference worker unavailable: %w", err)
		}
	}
	return c.exchange(ctx, req)
}

// restart replaces a stopped worker and checks that it still serves the
// schema the predictor was built for. Must be called with c.mu held.
func (c *PythonClassifier) restart(ctx context.Context) error {
	reason := c.dead
	if err := c.start(); err != nil {
		return fmt.Errorf("restart after %v: %w", reason, err)
	}
	c.dead = nil
	c.restarts++

	log.Warn().
		AnErr("reason", reason).
		Int("restarts", c.restarts).
		Str("model_path", c.modelPath).
		Msg("inference worker restarted")

	resp, err := c.exchange(ctx, inferenceRequest{Op: "schema"})
	if err != nil {
		c.kill(err)
		return fmt.Errorf("restarted worker: %w", err)
	}
	schema, err := schemaFromResponse(resp)
	if err == nil && !schema.Equal(c.schema) {
		err = fmt.Errorf("model schema changed from %s to %s", c.schema, schema)
	}
	if err != nil {
		c.kill(err)
		return fmt.Errorf("restarted worker: %w", err)
	}
	return nil
}

// exchange writes one request line and reads one reply line. Anything that
// leaves the reply stream out of step kills the worker. Must be called with
// c.mu held, or before the classifier is shared.
func (c *PythonClassifier) exchange(ctx context.Context, req inferenceRequest) (inferenceResponse, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return inferenceResponse{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if _, err := c.stdin.Write(append(payload, '\n')); err != nil {
		c.kill(fmt.Errorf("write request: %w", err))
		return inferenceResponse{}, fmt.Errorf("write request: %w, stderr: %s", err, c.stderr.String())
	}

	stdout := c.stdout
	done := make(chan lineResult, 1)
	go func() {
		line, err := stdout.ReadBytes('\n')
		done <- lineResult{line, err}
	}()

	var res lineResult
	select {
	case res = <-done:
	case <-ctx.Done():
		c.kill(ctx.Err())
		log.Error().
			Str("model_path", c.modelPath).
			Dur("timeout", c.timeout).
			Str("stderr", c.stderr.String()).
			Msg("inference worker timed out")
		return inferenceResponse{}, fmt.Errorf("inference timeout after %v: %w", c.timeout, ctx.Err())
	}

	if res.err != nil {
		c.kill(res.err)
		return inferenceResponse{}, fmt.Errorf("read response: %w, stderr: %s", res.err, c.stderr.String())
	}

	var resp inferenceResponse
	if err := json.Unmarshal(res.line, &resp); err != nil {
		// The real reply may still be buffered behind this line.
		c.kill(fmt.Errorf("unparseable response: %w", err))
		log.Error().
			Err(err).
			Str("stdout", string(res.line)).
			Msg("Failed to parse inference response")
		return inferenceResponse{}, fmt.Errorf("failed to parse response: %w", err)
	}
	if resp.Error != "" {
		return inferenceResponse{}, fmt.Errorf("python inference error: %s", resp.Error)
	}
	return resp, nil
}

// kill must be called with c.mu held.
func (c *PythonClassifier) kill(reason error) {
	if c.dead != nil {
		return
	}
	c.dead = reason
	if c.stdin != nil {
		c.stdin.Close()
	}
	cmd := c.cmd
	if cmd != nil && cmd.Process != nil {
		cmd.Process.Kill()
	}
	go waitWorker(cmd)
}

func waitWorker(cmd *exec.Cmd) error {
	if cmd == nil {
		return nil
	}
	err := cmd.Wait()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}

func schemaFromResponse(resp inferenceResponse) (features.Schema, error) {
	if len(resp.Classes) > 0 && (len(resp.Classes) != 2 || resp.Classes[0] != 0 || resp.Classes[1] != 1) {
		return nil, fmt.Errorf("expected binary classes [0 1], model reports %v", resp.Classes)
	}

	if len(resp.FeatureNames) > 0 {
		return features.Schema(resp.FeatureNames), nil
	}

	// Models fitted on bare arrays carry no names, only a width.
	def := features.DefaultSchema()
	if resp.NFeatures != len(def) {
		return nil, fmt.Errorf("model has no feature names and expects %d features, want %d", resp.NFeatures, len(def))
	}
	log.Warn().Str("schema", def.String()).Msg("model has no feature names, assuming default order")
	return def, nil
}

func resolveScript(scriptPath, modelPath string) (string, error) {
	if scriptPath != "" {
		if _, err := os.Stat(scriptPath); err != nil {
			return "", fmt.Errorf("inference script not accessible: %w", err)
		}
		return scriptPath, nil
	}

	scriptDir := filepath.Dir(modelPath)
	candidate := filepath.Join(scriptDir, "direction_inference.py")
	if _, err := os.Stat(candidate); err == nil {
		return candidate, nil
	}

	embedded := filepath.Join(scriptDir, embeddedScriptName)
	if err := createInferenceScript(embedded); err != nil {
		return "", fmt.Errorf("create inference script: %w", err)
	}
	return embedded, nil
}

func findPython(preferred string) (string, error) {
	if preferred != "" {
		path, err := exec.LookPath(preferred)
		if err != nil {
			return "", fmt.Errorf("python executable %q not found: %w", preferred, err)
		}
		return path, nil
	}

	var candidates []string
	if venvPath := os.Getenv("VIRTUAL_ENV"); venvPath != "" {
		candidates = append(candidates,
			filepath.Join(venvPath, "bin", "python3"),
			filepath.Join(venvPath, "bin", "python"),
			filepath.Join(venvPath, "Scripts", "python.exe"),
		)
	}
	candidates = append(candidates, "python3", "python")

	for _, candidate := range candidates {
		path, err := exec.LookPath(candidate)
		if err != nil {
			continue
		}
		cmd := exec.Command(path, "-c", "import sys, joblib; print('Python', sys.version)")
		if output, err := cmd.Output(); err == nil && strings.Contains(string(output), "Python 3") {
			log.Info().Str("python_path", path).Msg("Using Python with joblib")
			return path, nil
		}
	}

	return "", fmt.Errorf("no Python 3 executable with joblib found")
}

func createInferenceScript(scriptPath string) error {
	script := `#!/usr/bin/env python3
"""
Direction model inference worker (embedded version).
Reads one JSON request per line on stdin, writes one JSON response per line.
"""
import sys
import json

try:
    import joblib
except ImportError:
    print(json.dumps({"error": "joblib not installed"}), flush=True)
    sys.exit(1)

try:
    import pandas as pd
except ImportError:
    pd = None


def main():
    if len(sys.argv) != 2:
        print(json.dumps({"error": "Usage: direction_inference.py <model_path>"}), flush=True)
        sys.exit(1)

    try:
        model = joblib.load(sys.argv[1])
    except Exception as e:
        print(json.dumps({"error": "load model: %s" % e}), flush=True)
        sys.exit(1)

    names = [str(n) for n in getattr(model, "feature_names_in_", [])]
    classes = [int(c) for c in getattr(model, "classes_", [])]
    n_features = int(getattr(model, "n_features_in_", len(names)))

    for line in sys.stdin:
        line = line.strip()
        if not line:
            continue
        try:
            request = json.loads(line)
            if request.get("op") == "schema":
                response = {"feature_names": names, "classes": classes, "n_features": n_features}
            else:
                row = [float(x) for x in request["features"]]
                if names and pd is not None:
                    X = pd.DataFrame([row], columns=names)
                else:
                    X = [row]
                probabilities = [float(p) for p in model.predict_proba(X)[0]]
                total = sum(probabilities)
                if total > 0 and abs(total - 1.0) > 0.01:
                    probabilities = [p / total for p in probabilities]
                response = {
                    "probabilities": probabilities,
                    "prediction": int(model.predict(X)[0]),
                }
        except Exception as e:
            response = {"error": str(e)}
        sys.stdout.write(json.dumps(response) + "\n")
        sys.stdout.flush()


if __name__ == "__main__":
    main()
`

	return os.WriteFile(scriptPath, []byte(script), 0755)
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	buf []byte
	max int
}

func newTailBuffer(max int) *tailBuffer {
	return &tailBuffer{max: max}
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	if len(b.buf) > b.max {
		b.buf = b.buf[len(b.buf)-b.max:]
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.TrimSpace(string(b.buf))
}
