package healthcheck

import (
	"context"
	"sync"
	"time"

	"github.com/aman-churiwal/leetquery/internal/metrics"
	"github.com/rs/zerolog/log"
)

// Dependency is one backing service to check. A non-critical dependency can
// only degrade the overall status.
type Dependency struct {
	Name     string
	Check    func(ctx context.Context) error
	Critical bool
}

// Performs periodic health checks on the service's dependencies
type Checker struct {
	mu          sync.RWMutex
	deps        []Dependency
	status      map[string]*Status
	interval    time.Duration
	timeout     time.Duration
	maxFailures int
	stopChan    chan struct{}
	running     bool
}

// Holds health checker configuration
type Config struct {
	Dependencies []Dependency
	Interval     time.Duration // How often to check (default: 10s)
	Timeout      time.Duration // Per-dependency timeout (default: 5s)
	MaxFailures  int           // Failures before marking unhealthy (default: 3)
}

func NewChecker(cfg Config) *Checker {
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 3
	}

	checker := &Checker{
		deps:        cfg.Dependencies,
		status:      make(map[string]*Status),
		interval:    cfg.Interval,
		timeout:     cfg.Timeout,
		maxFailures: cfg.MaxFailures,
		stopChan:    make(chan struct{}),
	}

	for _, p := range cfg.Dependencies {
		checker.status[p.Name] = &Status{
			Name:      p.Name,
			Critical:  p.Critical,
			IsHealthy: true, // Assume healthy initially
			LastCheck: time.Now(),
		}
	}

	return checker
}

// Begins periodic health checks
func (c *Checker) Start() {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return
	}
	c.running = true
	c.mu.Unlock()

	log.Info().Int("dependencies", len(c.deps)).Dur("interval", c.interval).Msg("starting dependency health checks")

	c.checkAll()

	go func() {
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				c.checkAll()
			case <-c.stopChan:
				return
			}
		}
	}()
}

// Stops the health checker
func (c *Checker) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		close(c.stopChan)
		c.running = false
		log.Info().Msg("health checker stopped")
	}
}

func (c *Checker) checkAll() {
	var wg sync.WaitGroup

	for _, dep := range c.deps {
		wg.Add(1)
		go func(p Dependency) {
			defer wg.Done()
			c.checkDependency(p)
		}(dep)
	}

	wg.Wait()
}

func (c *Checker) checkDependency(p Dependency) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	if err := p.Check(ctx); err != nil {
		c.recordFailure(p.Name, err)
		return
	}
	c.recordSuccess(p.Name)
}

func (c *Checker) recordSuccess(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	status := c.status[name]
	status.LastCheck = time.Now()
	status.LastSuccess = status.LastCheck
	status.FailureCount = 0
	status.LastError = ""

	if !status.IsHealthy {
		log.Info().Str("dependency", name).Msg("dependency is healthy again")
		status.IsHealthy = true
	}
	metrics.SetDependencyUp(name, true)
}

func (c *Checker) recordFailure(name string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	status := c.status[name]
	status.LastCheck = time.Now()
	status.LastFailure = status.LastCheck
	status.FailureCount++
	status.LastError = err.Error()

	if status.IsHealthy && status.FailureCount >= c.maxFailures {
		log.Warn().Err(err).Str("dependency", name).Int("failures", status.FailureCount).Msg("dependency is unhealthy")
		status.IsHealthy = false
		metrics.SetDependencyUp(name, false)
	}
}

// Return the health status of a specific dependency
func (c *Checker) GetStatus(name string) *Status {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if status, exists := c.status[name]; exists {
		statusCopy := *status
		return &statusCopy
	}

	return nil
}

// Report is the readiness view of every dependency
type Report struct {
	Status       string             `json:"status"`
	Dependencies map[string]*Status `json:"dependencies"`
}

func (c *Checker) Report() Report {
	c.mu.RLock()
	defer c.mu.RUnlock()

	deps := make(map[string]*Status, len(c.status))
	for name, status := range c.status {
		statusCopy := *status
		deps[name] = &statusCopy
	}

	return Report{
		Status:       c.overallLocked().String(),
		Dependencies: deps,
	}
}

// Returns the overall health status
func (c *Checker) OverallHealth() HealthStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.overallLocked()
}

func (c *Checker) overallLocked() HealthStatus {
	overall := Healthy
	for _, status := range c.status {
		if status.IsHealthy {
			continue
		}
		if status.Critical {
			return Unhealthy
		}
		overall = Degraded
	}

	return overall
}
