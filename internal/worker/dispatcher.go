package worker

import (
	"container/list"
	"errors"
	"sync"
	"time"
)

var ErrDispatcherBusy = errors.New("dispatcher queue is full")

type groupQueue struct {
	jobs     []Job
	enqueued bool
}

// Dispatcher hands jobs to the worker pool round-robin across groups so a
// burst of uploads on one day cannot starve the others.
type Dispatcher struct {
	pool     *jobChannelPool
	JobQueue chan Job // intake channel, bounded by the queue size
	Manager  *Manager

	mu        sync.Mutex
	queues    map[string]*groupQueue
	ready     *list.List // LRU of group names with pending jobs
	positions map[string]*list.Element

	quit chan struct{}
	done chan struct{}
}

func NewDispatcher(minWorkers, maxWorkers, queueSize int, manager *Manager, idleTimeout time.Duration) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 1
	}
	d := &Dispatcher{
		queues:    make(map[string]*groupQueue),
		ready:     list.New(),
		positions: make(map[string]*list.Element),
		pool:      newJobChannelPool(minWorkers, maxWorkers, idleTimeout, manager),
		JobQueue:  make(chan Job, queueSize),
		Manager:   manager,
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
	}

	for i := 0; i < minWorkers; i++ {
		d.pool.spawnWorker()
	}

	go d.run()
	return d
}

// Submit queues job without blocking.
func (d *Dispatcher) Submit(job Job) error {
	select {
	case <-d.quit:
		return errors.New("dispatcher stopped")
	default:
	}
	select {
	case d.JobQueue <- job:
		return nil
	default:
		return ErrDispatcherBusy
	}
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for {
		if !d.dispatchOne() {
			select {
			case job := <-d.JobQueue: // idle, wait for work
				d.enqueueJob(job)
			case <-d.quit:
				return
			}
			continue
		}
		select {
		case job := <-d.JobQueue:
			d.enqueueJob(job)
		case <-d.quit:
			return
		default:
		}
	}
}

// stop ends the dispatch loop and returns the jobs that never reached a worker.
func (d *Dispatcher) stop() []Job {
	close(d.quit)
	<-d.done
	d.pool.stop()

	var dropped []Job
drain:
	for {
		select {
		case job := <-d.JobQueue:
			dropped = append(dropped, job)
		default:
			break drain
		}
	}
	d.mu.Lock()
	for e := d.ready.Front(); e != nil; e = e.Next() {
		dropped = append(dropped, d.queues[e.Value.(string)].jobs...)
	}
	d.queues = make(map[string]*groupQueue)
	d.ready.Init()
	d.positions = make(map[string]*list.Element)
	d.mu.Unlock()
	return dropped
}

func (d *Dispatcher) enqueueJob(job Job) {
	group := job.group()

	d.mu.Lock()
	defer d.mu.Unlock()

	q := d.queues[group]
	if q == nil {
		q = &groupQueue{}
		d.queues[group] = q
	}
	q.jobs = append(q.jobs, job)
	if q.enqueued {
		return
	}
	q.enqueued = true
	d.positions[group] = d.ready.PushBack(group)
}

// next pops the head job of the least recently served group.
func (d *Dispatcher) next() (Job, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	elem := d.ready.Front()
	if elem == nil {
		return Job{}, false
	}
	group := elem.Value.(string)
	q := d.queues[group]
	job := q.jobs[0]
	q.jobs = q.jobs[1:]
	if len(q.jobs) == 0 {
		q.enqueued = false
		d.ready.Remove(elem)
		delete(d.positions, group)
		delete(d.queues, group)
	} else {
		d.ready.MoveToBack(elem)
	}
	return job, true
}

func (d *Dispatcher) dispatchOne() bool {
	job, ok := d.next()
	if !ok {
		return false
	}
	workerChan := d.pool.acquire()
	debugLog("[dispatcher] assign %s job %s (%s) to worker-%d", job.Kind, job.ID, job.Key, d.pool.workerID(workerChan))
	workerChan <- job
	return true
}
