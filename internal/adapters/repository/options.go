package repository

import "time"

// Option applies a configuration option to the FileStore.
type Option func(*FileStore)

// WithLockTimeout bounds how long a call waits for the results file lock.
func WithLockTimeout(d time.Duration) Option {
	return func(s *FileStore) {
		if d > 0 {
			s.lockTimeout = d
		}
	}
}

// WithPersistRetries sets how many times a failed write is retried.
func WithPersistRetries(n int) Option {
	return func(s *FileStore) {
		if n >= 0 {
			s.retries = n
		}
	}
}

// WithRetryDelay sets the pause between write retries and lock polls.
func WithRetryDelay(d time.Duration) Option {
	return func(s *FileStore) {
		if d > 0 {
			s.retryDelay = d
		}
	}
}
