package slurmrest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hilloc/hilloc-launcher/internal/sbatch"
)

// Client wraps the scheduler's REST API (slurmrestd) for clusters that expose
// it instead of, or alongside, the command-line tools.
type Client struct {
	baseURL    string
	user       string
	token      string
	httpClient *http.Client
}

// NewClient creates a REST client. user/token are the scheduler's
// X-SLURM-USER-NAME / X-SLURM-USER-TOKEN credentials.
func NewClient(baseURL, user, token string) *Client {
	return &Client{
		baseURL: baseURL,
		user:    user,
		token:   token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// --- Request/response types ---

// JobProperties is the resource request in the REST API's shape.
type JobProperties struct {
	Name                    string            `json:"name"`
	Partition               string            `json:"partition,omitempty"`
	QOS                     string            `json:"qos,omitempty"`
	Tasks                   int               `json:"tasks,omitempty"`
	MemoryPerNode           int               `json:"memory_per_node,omitempty"`
	TimeLimit               string            `json:"time_limit,omitempty"`
	TemporaryDiskPerNode    int               `json:"temporary_disk_per_node,omitempty"`
	GenericResources        string            `json:"gres,omitempty"`
	MailType                string            `json:"mail_type,omitempty"`
	MailUser                string            `json:"mail_user,omitempty"`
	CurrentWorkingDirectory string            `json:"current_working_directory,omitempty"`
	StandardOutput          string            `json:"standard_output,omitempty"`
	Environment             map[string]string `json:"environment,omitempty"`
}

// JobSubmission pairs the batch script body with its resource request.
type JobSubmission struct {
	Script string        `json:"script"`
	Job    JobProperties `json:"job"`
}

// apiError is one entry of the API's errors array
type apiError struct {
	Error     string `json:"error,omitempty"`
	ErrorCode int    `json:"error_number,omitempty"`
}

type submitResponse struct {
	JobID  int        `json:"job_id"`
	Errors []apiError `json:"errors,omitempty"`
}

// JobInfo describes a queued or running job.
type JobInfo struct {
	JobID     int    `json:"job_id"`
	Name      string `json:"name"`
	JobState  string `json:"job_state"`
	Partition string `json:"partition"`
	QOS       string `json:"qos"`
	UserName  string `json:"user_name"`
	NodeList  string `json:"nodes"`
	ExitCode  int    `json:"exit_code"`
}

// PropertiesFromDirectives maps a directive set onto the REST request shape.
// The two encodings carry the same resource request; only the syntax differs.
func PropertiesFromDirectives(d sbatch.Directives, workDir string) JobProperties {
	p := JobProperties{
		Name:                    d.JobName,
		Partition:               d.Partition,
		QOS:                     d.QOS,
		Tasks:                   d.NTasks,
		MemoryPerNode:           d.MemoryMB,
		TimeLimit:               d.TimeLimit,
		TemporaryDiskPerNode:    d.TmpDiskMB,
		MailType:                d.MailType,
		MailUser:                d.MailUser,
		CurrentWorkingDirectory: workDir,
	}
	if d.GPUs > 0 {
		p.GenericResources = fmt.Sprintf("gpu:%d", d.GPUs)
	}
	return p
}

// --- Job API ---

// SubmitJob submits a batch script and returns the scheduler's job ID.
func (c *Client) SubmitJob(sub JobSubmission) (int, error) {
	var resp submitResponse
	if err := c.doPostJSON("/slurm/v0.0.38/job/submit", sub, &resp); err != nil {
		return 0, err
	}
	if len(resp.Errors) > 0 {
		return 0, fmt.Errorf("submission rejected: %s", resp.Errors[0].Error)
	}
	return resp.JobID, nil
}

// GetJob returns queue information for one job.
func (c *Client) GetJob(jobID int) (*JobInfo, error) {
	var resp struct {
		Jobs []JobInfo `json:"jobs"`
	}
	if err := c.doGet(fmt.Sprintf("/slurm/v0.0.38/job/%d", jobID), &resp); err != nil {
		return nil, err
	}
	if len(resp.Jobs) == 0 {
		return nil, fmt.Errorf("job %d not found", jobID)
	}
	return &resp.Jobs[0], nil
}

// CancelJob asks the scheduler to kill a job.
func (c *Client) CancelJob(jobID int) error {
	req, err := http.NewRequest("DELETE", c.baseURL+fmt.Sprintf("/slurm/v0.0.38/job/%d", jobID), nil)
	if err != nil {
		return err
	}
	return c.doRequest(req, nil)
}

// --- HTTP helpers ---

func (c *Client) doGet(path string, result interface{}) error {
	req, err := http.NewRequest("GET", c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.doRequest(req, result)
}

func (c *Client) doPostJSON(path string, payload interface{}, result interface{}) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequest("POST", c.baseURL+path, body)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.doRequest(req, result)
}

func (c *Client) doRequest(req *http.Request, result interface{}) error {
	if c.user != "" {
		req.Header.Set("X-SLURM-USER-NAME", c.user)
	}
	if c.token != "" {
		req.Header.Set("X-SLURM-USER-TOKEN", c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return fmt.Errorf("API error %d: %s", resp.StatusCode, string(body))
	}

	if result != nil && len(body) > 0 {
		if err := json.Unmarshal(body, result); err != nil {
			return fmt.Errorf("parse response: %w", err)
		}
	}

	return nil
}
