// Command provider_probe validates LMS connection targets before they are
// registered with the gateway. It reads a JSON file of provider targets,
// runs the real adapter auth flow plus a shallow data pull against each,
// and exits non-zero if any critical target fails.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/campushub/lms-sync-api/internal/models"
	"github.com/campushub/lms-sync-api/internal/provider"
)

type target struct {
	Name           string                `json:"name"`
	ProviderType   models.ProviderType   `json:"provider_type"`
	BaseURL        string                `json:"base_url"`
	CredentialType models.CredentialType `json:"credential_type"`
	Credentials    models.Credentials    `json:"credentials"`
	Critical       bool                  `json:"critical"`
}

type config struct {
	Targets []target `json:"targets"`
}

type probe struct {
	Target       target
	AuthOK       bool
	UserCount    int
	CourseCount  int
	DurationAuth time.Duration
	DurationPull time.Duration
	Error        error
}

func main() {
	var (
		targetsPath string
		timeout     time.Duration
		pullRoster  bool
	)

	flag.StringVar(&targetsPath, "targets", filepath.Join("scripts", "provider_probe", "targets.json"), "Path to JSON targets file")
	flag.DurationVar(&timeout, "timeout", 15*time.Second, "Per-target probe timeout")
	flag.BoolVar(&pullRoster, "pull", true, "Also pull users and courses after authenticating")
	flag.Parse()

	targets, err := loadTargets(targetsPath)
	if err != nil {
		log.Fatalf("failed to load targets: %v", err)
	}

	var (
		probes   []probe
		breaking int
		soft     int
	)

	for _, t := range targets {
		p := probeTarget(t, timeout, pullRoster)
		if p.Error != nil || !p.AuthOK {
			if t.Critical {
				breaking++
			} else {
				soft++
			}
		}
		probes = append(probes, p)
	}

	printReport(probes)

	fmt.Printf("Critical failures: %d, Non-critical failures: %d\n", breaking, soft)
	if breaking > 0 {
		os.Exit(1)
	}
}

func loadTargets(path string) ([]target, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if len(cfg.Targets) == 0 {
		return nil, fmt.Errorf("no targets defined in %s", path)
	}
	return cfg.Targets, nil
}

func probeTarget(tgt target, timeout time.Duration, pullRoster bool) probe {
	p := probe{Target: tgt}

	adapter, err := provider.New(models.ProviderConfig{
		ProviderType:   tgt.ProviderType,
		BaseURL:        tgt.BaseURL,
		CredentialType: tgt.CredentialType,
		Credentials:    tgt.Credentials,
		Timeout:        timeout,
	}, zap.NewNop())
	if err != nil {
		p.Error = fmt.Errorf("build adapter: %w", err)
		return p
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	start := time.Now()
	ok, err := adapter.Authenticate(ctx)
	p.DurationAuth = time.Since(start)
	if err != nil {
		p.Error = fmt.Errorf("authenticate: %w", err)
		return p
	}
	p.AuthOK = ok
	if !ok || !pullRoster {
		return p
	}

	start = time.Now()
	users, err := adapter.ListUsers(ctx)
	if err != nil {
		p.DurationPull = time.Since(start)
		p.Error = fmt.Errorf("list users: %w", err)
		return p
	}
	courses, err := adapter.ListCourses(ctx)
	p.DurationPull = time.Since(start)
	if err != nil {
		p.Error = fmt.Errorf("list courses: %w", err)
		return p
	}
	p.UserCount = len(users)
	p.CourseCount = len(courses)

	return p
}

func printReport(results []probe) {
	fmt.Println("Provider Probe Report")
	fmt.Println("=====================")
	for _, res := range results {
		status := "OK"
		if res.Error != nil {
			status = "ERROR"
		} else if !res.AuthOK {
			status = "REJECTED"
		}
		fmt.Printf("[%s] %s (%s) %s\n", status, res.Target.Name, res.Target.ProviderType, res.Target.BaseURL)
		fmt.Printf("  Auth: %t (%s) | Critical: %t\n", res.AuthOK, res.DurationAuth, res.Target.Critical)
		if res.Error != nil {
			fmt.Printf("  Error: %v\n", res.Error)
			continue
		}
		if res.AuthOK && res.DurationPull > 0 {
			fmt.Printf("  Users: %d | Courses: %d (%s)\n", res.UserCount, res.CourseCount, res.DurationPull)
		}
	}
}
