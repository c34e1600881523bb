// Package tasks defines the repair task model and dataset loading.
// Datasets are swebench-shaped JSON or JSONL files; loading normalizes them
// into immutable Task values consumed by the episode orchestrator.
package tasks

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
)

// Override carries caller-supplied upstream choices for controlled replay.
// When a task carries an Override, the context builder honors it verbatim and
// performs no bandit sampling.
type Override struct {
	Planner  string `json:"planner"`
	Strategy string `json:"strategy"`
}

// Task is the immutable input to one repair episode.
type Task struct {
	ID               string   `json:"task_id"`
	Repo             string   `json:"repo"`
	ProblemStatement string   `json:"problem_statement"`
	FailLog          string   `json:"fail_log"`
	FailingFiles     []string `json:"failing_files"`
	// RepoFingerprint identifies the repo for skill routing; defaults to Repo.
	RepoFingerprint string `json:"repo_fingerprint,omitempty"`
	// Upstream is the explicit replay override; nil means absent.
	Upstream *Override `json:"upstream,omitempty"`
}

// Fingerprint returns the routing fingerprint, falling back to the repo name.
func (t Task) Fingerprint() string {
	if t.RepoFingerprint != "" {
		return t.RepoFingerprint
	}
	return t.Repo
}

// FailureText returns the freshest failure signal: the fail log when present,
// otherwise the problem statement.
func (t Task) FailureText() string {
	if t.FailLog != "" {
		return t.FailLog
	}
	return t.ProblemStatement
}

// rawTask tolerates both mend-native and swebench field names.
type rawTask struct {
	TaskID           string   `json:"task_id"`
	InstanceID       string   `json:"instance_id"`
	Repo             string   `json:"repo"`
	ProblemStatement string   `json:"problem_statement"`
	FailLog          string   `json:"fail_log"`
	FailingFiles     []string `json:"failing_files"`
	FailToPass       []string `json:"FAIL_TO_PASS"`
	RepoFingerprint  string   `json:"repo_fingerprint"`
	Upstream         *Override `json:"upstream"`
}

func (r rawTask) normalize(i int) Task {
	t := Task{
		ID:               r.TaskID,
		Repo:             r.Repo,
		ProblemStatement: r.ProblemStatement,
		FailLog:          r.FailLog,
		FailingFiles:     r.FailingFiles,
		RepoFingerprint:  r.RepoFingerprint,
		Upstream:         r.Upstream,
	}
	if t.ID == "" {
		t.ID = r.InstanceID
	}
	if t.ID == "" {
		t.ID = fmt.Sprintf("task_%d", i+1)
	}
	if t.Repo == "" {
		t.Repo = "unknown"
	}
	if len(t.FailingFiles) == 0 {
		t.FailingFiles = r.FailToPass
	}
	return t
}

// Load reads tasks from a JSON array file or a JSONL file. maxTasks <= 0
// means no limit.
func Load(path string, maxTasks int) ([]Task, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read dataset: %w", err)
	}

	var raws []rawTask
	if err := json.Unmarshal(data, &raws); err != nil {
		// Try JSONL (one JSON object per line).
		raws, err = parseJSONL(data)
		if err != nil {
			return nil, fmt.Errorf("dataset is neither a JSON array nor JSONL: %w", err)
		}
	}

	out := make([]Task, 0, len(raws))
	for i, r := range raws {
		out = append(out, r.normalize(i))
		if maxTasks > 0 && len(out) == maxTasks {
			break
		}
	}
	return out, nil
}

func parseJSONL(data []byte) ([]rawTask, error) {
	var raws []rawTask
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := bytes.TrimSpace(scanner.Bytes())
		if len(text) == 0 {
			continue
		}
		var r rawTask
		if err := json.Unmarshal(text, &r); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		raws = append(raws, r)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return raws, nil
}
