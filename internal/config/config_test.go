package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeJobFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "job.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestDefault_MatchesReferenceExperiment(t *testing.T) {
	f := Default()

	d := f.Directives()
	assert.Equal(t, "hilloc", d.JobName)
	assert.Equal(t, 1, d.NTasks)
	assert.Equal(t, 32768, d.MemoryMB)
	assert.Equal(t, "6:00:00", d.TimeLimit)
	assert.Equal(t, 1, d.GPUs)

	inv := f.Invocation()
	assert.Equal(t, "python train.py", inv.Program)
	assert.Equal(t, "train", inv.Mode)
	assert.Equal(t, "log", inv.LogDir)
	assert.Equal(t, 1, inv.NumGPUs)
	assert.Equal(t,
		"depth=1,num_blocks=24,kl_min=0.1,learning_rate=0.002,batch_size=32,enable_iaf=False,dataset=cifar10",
		inv.Hyper.String())

	// User-supplied values start empty
	assert.Empty(t, d.MailUser)
	assert.Empty(t, f.Environment.WorkDir)
	assert.Equal(t, "hilloc", f.Environment.Name)
}

func TestLoad_LayersOverDefaults(t *testing.T) {
	path := writeJobFile(t, `
job:
  mail_user: user@example.org
environment:
  profile_scripts: [/etc/profile, /opt/conda/etc/profile.d/conda.sh]
  work_dir: /home/user/experiments/hilloc
training:
  hyperparameters:
    batch_size: 64
`)

	f, err := Load(path)
	require.NoError(t, err)

	// Overridden values
	assert.Equal(t, "user@example.org", f.Job.MailUser)
	assert.Equal(t, "/home/user/experiments/hilloc", f.Environment.WorkDir)
	assert.Equal(t, 64, f.Training.Hyperparameters.BatchSize)

	// Everything else keeps its default
	assert.Equal(t, 32768, f.Job.MemoryMB)
	assert.Equal(t, "hilloc", f.Environment.Name)
	assert.Equal(t, 24, f.Training.Hyperparameters.NumBlocks)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/job.yaml")
	assert.Error(t, err)
}

func TestLoad_MalformedYAML(t *testing.T) {
	path := writeJobFile(t, "job: [not a mapping")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestDirectives_MailTypeDefaultsWhenUserSet(t *testing.T) {
	f := Default()
	f.Job.MailUser = "user@example.org"

	d := f.Directives()
	assert.Equal(t, "END,FAIL", d.MailType)
	assert.Equal(t, "user@example.org", d.MailUser)
}

func TestDirectives_MailTypeDroppedWithoutUser(t *testing.T) {
	f := Default()
	f.Job.MailType = "END"

	d := f.Directives()
	assert.Empty(t, d.MailType)
}

func TestActivation_MapsEnvironmentSection(t *testing.T) {
	f := Default()
	f.Environment.ProfileScripts = []string{"/etc/profile"}
	f.Environment.WorkDir = "/work"

	a := f.Activation()
	assert.Equal(t, []string{"/etc/profile"}, a.ProfileScripts)
	assert.Equal(t, "hilloc", a.EnvName)
	assert.Equal(t, "/work", a.WorkDir)
}

func TestValidate_RequiresWorkDir(t *testing.T) {
	f := Default()
	err := f.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "environment")
}

func TestValidate_FullJobFilePasses(t *testing.T) {
	f := Default()
	f.Environment.WorkDir = "/home/user/experiments/hilloc"
	assert.NoError(t, f.Validate())
}

func TestValidate_SurfacesHyperparameterErrors(t *testing.T) {
	f := Default()
	f.Environment.WorkDir = "/work"
	f.Training.Hyperparameters.LearningRate = 0

	err := f.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hyperparameters")
}
