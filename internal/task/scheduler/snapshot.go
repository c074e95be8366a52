package scheduler

// Snapshot returns the live jobs and lifetime delivery counters.
func (s *Service) Snapshot() Snapshot {
	return Snapshot{
		Jobs:        s.ListJobs(),
		FiredTotal:  s.fired.Load(),
		FailedTotal: s.failed.Load(),
	}
}
