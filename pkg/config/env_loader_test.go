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

var _ = Describe("EnvLoader", func() {
	var env map[string]string

	newLoader := func() *EnvLoader {
		return NewEnvLoader("").WithLookup(func(key string) (string, bool) {
			v, ok := env[key]
			return v, ok
		})
	}

	BeforeEach(func() {
		env = map[string]string{}
	})

	It("should override fields by inferred type", func() {
		env["PORTKILL_SCANNER_PORTS"] = "3000, 8080"
		env["PORTKILL_SCANNER_SCAN_INTERVAL"] = "2s"
		env["PORTKILL_FILTER_IGNORE_PATTERNS"] = "node*,java"
		env["PORTKILL_METRICS_ENABLED"] = "yes"
		env["PORTKILL_API_PORT"] = "9200"

		cfg := &models.Config{}
		Expect(newLoader().LoadFromEnv(cfg)).To(Succeed())
		Expect(cfg.Scanner.Ports).To(Equal([]int{3000, 8080}))
		Expect(cfg.Scanner.ScanInterval).To(Equal(2 * time.Second))
		Expect(cfg.Filter.IgnorePatterns).To(Equal([]string{"node*", "java"}))
		Expect(cfg.Metrics.Enabled).To(BeTrue())
		Expect(cfg.API.Port).To(Equal(9200))
	})

	It("should leave fields alone when the variable is unset", func() {
		cfg := &models.Config{}
		cfg.Kill.GracePeriod = time.Second
		Expect(newLoader().LoadFromEnv(cfg)).To(Succeed())
		Expect(cfg.Kill.GracePeriod).To(Equal(time.Second))
	})

	It("should fail on a value that does not convert", func() {
		env["PORTKILL_KILL_GRACE_PERIOD"] = "soon"
		Expect(newLoader().LoadFromEnv(&models.Config{})).To(MatchError(ContainSubstring("kill.grace_period")))
	})

	It("should honour custom mappings", func() {
		env["PORTS"] = "4000"
		loader := newLoader().AddMapping("scanner.ports", "PORTS")
		cfg := &models.Config{}
		Expect(loader.LoadFromEnv(cfg)).To(Succeed())
		Expect(cfg.Scanner.Ports).To(Equal([]int{4000}))
	})

	Describe("BoolConverter", func() {
		It("should reject unknown words", func() {
			_, err := (&BoolConverter{}).Convert("maybe")
			Expect(err).To(HaveOccurred())
		})
	})
})
