package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/hilloc/hilloc-launcher/internal/env"
	"github.com/hilloc/hilloc-launcher/internal/hyper"
	"github.com/hilloc/hilloc-launcher/internal/launch"
	"github.com/hilloc/hilloc-launcher/internal/sbatch"
)

// JobFile is the YAML description of one training job: the resource request,
// the environment preamble, and the trainer invocation. Everything the batch
// script hardcoded lives here instead; in particular the mail address and the
// experiment directory are supplied by the user, never baked in.
type JobFile struct {
	Job         JobSection      `yaml:"job"`
	Environment EnvSection      `yaml:"environment"`
	Training    TrainingSection `yaml:"training"`
}

// JobSection carries the scheduler directives.
type JobSection struct {
	Name      string `yaml:"name"`
	Tasks     int    `yaml:"tasks"`
	MemoryMB  int    `yaml:"memory_mb"`
	TimeLimit string `yaml:"time_limit"`
	TmpDiskMB int    `yaml:"tmp_disk_mb"`
	Partition string `yaml:"partition"`
	QOS       string `yaml:"qos"`
	GPUs      int    `yaml:"gpus"`
	MailType  string `yaml:"mail_type"`
	MailUser  string `yaml:"mail_user"`
}

// EnvSection carries the execution preamble.
type EnvSection struct {
	ProfileScripts []string `yaml:"profile_scripts"`
	Name           string   `yaml:"name"`
	WorkDir        string   `yaml:"work_dir"`
}

// TrainingSection carries the trainer invocation.
type TrainingSection struct {
	Program         string       `yaml:"program"`
	Mode            string       `yaml:"mode"`
	LogDir          string       `yaml:"log_dir"`
	NumGPUs         int          `yaml:"num_gpus"`
	Hyperparameters HyperSection `yaml:"hyperparameters"`
}

// HyperSection mirrors hyper.Config with YAML tags.
type HyperSection struct {
	Depth        int     `yaml:"depth"`
	NumBlocks    int     `yaml:"num_blocks"`
	KLMin        float64 `yaml:"kl_min"`
	LearningRate float64 `yaml:"learning_rate"`
	BatchSize    int     `yaml:"batch_size"`
	EnableIAF    bool    `yaml:"enable_iaf"`
	Dataset      string  `yaml:"dataset"`
}

// Default returns the configuration of the reference experiment. WorkDir and
// MailUser are empty on purpose; both are user-supplied.
func Default() *JobFile {
	d := sbatch.Default()
	h := hyper.Default()
	return &JobFile{
		Job: JobSection{
			Name:      d.JobName,
			Tasks:     d.NTasks,
			MemoryMB:  d.MemoryMB,
			TimeLimit: d.TimeLimit,
			TmpDiskMB: d.TmpDiskMB,
			Partition: d.Partition,
			QOS:       d.QOS,
			GPUs:      d.GPUs,
		},
		Environment: EnvSection{
			Name: "hilloc",
		},
		Training: TrainingSection{
			Program: "python train.py",
			Mode:    "train",
			LogDir:  "log",
			NumGPUs: d.GPUs,
			Hyperparameters: HyperSection{
				Depth:        h.Depth,
				NumBlocks:    h.NumBlocks,
				KLMin:        h.KLMin,
				LearningRate: h.LearningRate,
				BatchSize:    h.BatchSize,
				EnableIAF:    h.EnableIAF,
				Dataset:      h.Dataset,
			},
		},
	}
}

// Load reads a job file, layering it over the defaults: anything absent from
// the YAML keeps its default value.
func Load(path string) (*JobFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read job file: %w", err)
	}

	f := Default()
	if err := yaml.Unmarshal(data, f); err != nil {
		return nil, fmt.Errorf("failed to parse job file %s: %w", path, err)
	}
	return f, nil
}

// Directives maps the job section onto scheduler directives. If a mail
// address is set without explicit triggers, END,FAIL is assumed.
func (f *JobFile) Directives() sbatch.Directives {
	d := sbatch.Directives{
		JobName:   f.Job.Name,
		NTasks:    f.Job.Tasks,
		MemoryMB:  f.Job.MemoryMB,
		TimeLimit: f.Job.TimeLimit,
		TmpDiskMB: f.Job.TmpDiskMB,
		Partition: f.Job.Partition,
		QOS:       f.Job.QOS,
		GPUs:      f.Job.GPUs,
		MailType:  f.Job.MailType,
		MailUser:  f.Job.MailUser,
	}
	if d.MailUser != "" && d.MailType == "" {
		d.MailType = "END,FAIL"
	}
	if d.MailUser == "" {
		d.MailType = ""
	}
	return d
}

// Activation maps the environment section onto the execution preamble.
func (f *JobFile) Activation() env.Activation {
	return env.Activation{
		ProfileScripts: f.Environment.ProfileScripts,
		EnvName:        f.Environment.Name,
		WorkDir:        f.Environment.WorkDir,
	}
}

// Invocation maps the training section onto the trainer call.
func (f *JobFile) Invocation() launch.Invocation {
	h := f.Training.Hyperparameters
	return launch.Invocation{
		Program: f.Training.Program,
		Hyper: hyper.Config{
			Depth:        h.Depth,
			NumBlocks:    h.NumBlocks,
			KLMin:        h.KLMin,
			LearningRate: h.LearningRate,
			BatchSize:    h.BatchSize,
			EnableIAF:    h.EnableIAF,
			Dataset:      h.Dataset,
		},
		NumGPUs: f.Training.NumGPUs,
		Mode:    f.Training.Mode,
		LogDir:  f.Training.LogDir,
	}
}

// Validate checks the whole job file section by section.
func (f *JobFile) Validate() error {
	if err := f.Directives().Validate(); err != nil {
		return fmt.Errorf("job: %w", err)
	}
	if err := f.Activation().Validate(); err != nil {
		return fmt.Errorf("environment: %w", err)
	}
	inv := f.Invocation()
	if err := inv.Validate(); err != nil {
		return fmt.Errorf("training: %w", err)
	}
	if err := inv.Hyper.Validate(); err != nil {
		return fmt.Errorf("hyperparameters: %w", err)
	}
	return nil
}
