/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package telemetry

import (
	"os"
	"regexp"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"gopkg.in/yaml.v3"
)

const alertsPath = "../../deploy/prometheus/alerts.yml"

type alertRule struct {
	Alert       string            `yaml:"alert"`
	Expr        string            `yaml:"expr"`
	For         string            `yaml:"for"`
	Labels      map[string]string `yaml:"labels"`
	Annotations map[string]string `yaml:"annotations"`
}

type alertGroup struct {
	Name  string      `yaml:"name"`
	Rules []alertRule `yaml:"rules"`
}

type alertsFile struct {
	Groups []alertGroup `yaml:"groups"`
}

func loadAlerts(t *testing.T) alertsFile {
	t.Helper()
	data, err := os.ReadFile(alertsPath)
	if err != nil {
		t.Skipf("Skipping test: alerts file not found at %s", alertsPath)
	}
	var cfg alertsFile
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		t.Fatalf("Invalid YAML in alerts.yml: %v", err)
	}
	if len(cfg.Groups) == 0 {
		t.Fatal("alerts.yml has no groups")
	}
	return cfg
}

// TestAlertLabels verifies alerts have a severity and a summary.
func TestAlertLabels(t *testing.T) {
	cfg := loadAlerts(t)
	for _, group := range cfg.Groups {
		for _, alert := range group.Rules {
			if alert.Alert == "" {
				continue
			}
			if _, ok := alert.Labels["severity"]; !ok {
				t.Errorf("Alert '%s' missing 'severity' label", alert.Alert)
			}
			if _, ok := alert.Annotations["summary"]; !ok {
				t.Errorf("Alert '%s' missing 'summary' annotation", alert.Alert)
			}
		}
	}
}

var (
	metricRef = regexp.MustCompile(`snapsweep_[a-z_]+`)
	fqName    = regexp.MustCompile(`fqName: "([^"]+)"`)
)

// TestAlertMetricsAreRegistered verifies every metric an alert queries is exported.
func TestAlertMetricsAreRegistered(t *testing.T) {
	cfg := loadAlerts(t)

	registered := map[string]bool{}
	for _, c := range Collectors() {
		ch := make(chan *prometheus.Desc, 4)
		go func() {
			c.Describe(ch)
			close(ch)
		}()
		for d := range ch {
			if m := fqName.FindStringSubmatch(d.String()); m != nil {
				registered[m[1]] = true
			}
		}
	}

	for _, group := range cfg.Groups {
		for _, alert := range group.Rules {
			for _, name := range metricRef.FindAllString(alert.Expr, -1) {
				base := name
				for _, suffix := range []string{"_bucket", "_sum", "_count"} {
					base = strings.TrimSuffix(base, suffix)
				}
				if !registered[base] {
					t.Errorf("alert %s references unknown metric %s", alert.Alert, name)
				}
			}
		}
	}
}
