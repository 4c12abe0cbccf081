package worker

import (
	"log/slog"
	"runtime/debug"
)

type jobType string

const (
	jobRun  jobType = "run"
	jobStop jobType = "stop"
)

// Job is a unit of work scheduled fairly across keys.
type Job struct {
	Key  string
	Run  func()
	kind jobType
}

type Worker struct {
	pool       *jobChannelPool
	jobChannel chan Job
}

func NewWorker(pool *jobChannelPool) *Worker {
	return &Worker{
		pool:       pool,
		jobChannel: make(chan Job),
	}
}

func (w *Worker) Start() {
	go func() {
		defer w.pool.retire(w.jobChannel)
		for {
			if !w.pool.Release(w.jobChannel) {
				return
			}
			job := <-w.jobChannel
			if job.kind == jobStop {
				return
			}
			w.run(job)
		}
	}()
}

func (w *Worker) run(job Job) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("worker job panicked", "key", job.Key, "panic", r, "stack", string(debug.Stack()))
		}
	}()
	if job.Run != nil {
		job.Run()
	}
}
