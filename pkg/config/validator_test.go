// Copyright 2025 CompliK Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"time"

	"github.com/bearslyricattack/CompliK/portkill/pkg/models"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("ConfigValidator", func() {
	var (
		validator *ConfigValidator
		cfg       *models.Config
	)

	BeforeEach(func() {
		validator = NewConfigValidator()
		cfg = &models.Config{}
		cfg.Scanner.Ports = []int{3000, 8080}
	})

	Describe("NewConfigValidator", func() {
		It("should create validator with default rules", func() {
			Expect(validator.GetFieldRules("scanner.scan_interval")).NotTo(BeEmpty())
			Expect(validator.GetFieldRules("filter.ignore_patterns")).NotTo(BeEmpty())
			Expect(validator.GetFieldRules("kill.grace_period")).NotTo(BeEmpty())
		})
	})

	Describe("Validate", func() {
		It("should accept a minimal configuration", func() {
			result := validator.Validate(cfg)
			Expect(result.Valid).To(BeTrue())
			Expect(result.Errors).To(BeEmpty())
		})

		It("should accept the defaults", func() {
			cfg.ApplyDefaults()
			Expect(validator.Validate(cfg).Valid).To(BeTrue())
		})

		It("should reject an invalid port", func() {
			cfg.Scanner.Ports = []int{3000, 0}
			result := validator.Validate(cfg)
			Expect(result.Valid).To(BeFalse())
			Expect(result.Errors[0]).To(ContainSubstring("scanner.ports[1]"))
		})

		It("should reject an invalid log level", func() {
			cfg.Scanner.LogLevel = "loud"
			Expect(validator.Validate(cfg).Valid).To(BeFalse())
		})

		It("should reject a grace period above the maximum", func() {
			cfg.Kill.GracePeriod = 2 * time.Minute
			Expect(validator.Validate(cfg).Valid).To(BeFalse())
		})

		It("should reject a blank ignore pattern", func() {
			cfg.Filter.IgnorePatterns = []string{"node*", ""}
			result := validator.Validate(cfg)
			Expect(result.Valid).To(BeFalse())
			Expect(result.Errors[0]).To(ContainSubstring("filter.ignore_patterns[1]"))
		})

		It("should reject the same port for metrics and api", func() {
			cfg.Metrics.Enabled, cfg.Metrics.Port = true, 9100
			cfg.API.Enabled, cfg.API.Port = true, 9100
			Expect(validator.Validate(cfg).Valid).To(BeFalse())
		})

		It("should warn when no ports are configured", func() {
			cfg.Scanner.Ports = nil
			result := validator.Validate(cfg)
			Expect(result.Valid).To(BeTrue())
			Expect(result.Warnings).To(ContainElement(ContainSubstring("no ports configured")))
		})

		It("should warn about a group both ignored and allowed", func() {
			cfg.Filter.IgnoreGroups = []string{"Java"}
			cfg.Filter.OnlyGroups = []string{"Java", "Go"}
			Expect(validator.Validate(cfg).Warnings).To(ContainElement(ContainSubstring("'Java'")))
		})

		It("should warn when the refresh interval does not exceed the scan interval", func() {
			cfg.Monitor.MinRefreshInterval = time.Second
			result := validator.Validate(cfg)
			Expect(result.Valid).To(BeTrue())
			Expect(result.Warnings).To(ContainElement(ContainSubstring("monitor.min_refresh_interval 1s")))

			cfg.Monitor.MinRefreshInterval = 0
			cfg.Scanner.ScanInterval = 10 * time.Second
			Expect(validator.Validate(cfg).Warnings).To(ContainElement(ContainSubstring("scanner.scan_interval 10s")))
		})

		It("should not warn about intervals with the defaults", func() {
			Expect(validator.Validate(cfg).Warnings).NotTo(ContainElement(ContainSubstring("min_refresh_interval")))
			cfg.ApplyDefaults()
			Expect(validator.Validate(cfg).Warnings).NotTo(ContainElement(ContainSubstring("min_refresh_interval")))
		})
	})

	Describe("ValidateFile", func() {
		It("should warn about a non-yaml extension", func() {
			Expect(validator.ValidateFile("portkill.json").Warnings).NotTo(BeEmpty())
			Expect(validator.ValidateFile("portkill.yaml").Warnings).To(BeEmpty())
		})
	})
})
