package worker

// Worker runs jobs handed to it on its own channel.
type Worker struct {
	pool       *jobChannelPool
	manager    *Manager
	jobChannel chan Job
}

func NewWorker(pool *jobChannelPool, manager *Manager) *Worker {
	return &Worker{
		pool:       pool,
		manager:    manager,
		jobChannel: make(chan Job),
	}
}

func (w *Worker) Start() {
	go func() {
		defer w.pool.wg.Done()
		for {
			w.pool.Release(w.jobChannel)
			job := <-w.jobChannel
			if job.Type == Stop {
				w.pool.retire(w.jobChannel)
				return
			}
			w.manager.execute(job)
		}
	}()
}
