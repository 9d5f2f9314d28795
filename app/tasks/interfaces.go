package tasks

// TaskSchedulerInterface is what the API needs to hand work to the
// background workers.
//
//	scheduler := NewScheduler(archiveRepo, interval, workerCount)
//	scheduler.Start()
//	defer scheduler.Stop()
//	scheduler.EnqueueTask(NewArchiveFeedTask(...))
type TaskSchedulerInterface interface {
	Start()
	Stop()
	EnqueueTask(task TaskInterface) error
}
