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
	"github.com/bearslyricattack/CompliK/portkill/pkg/models"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Ports", func() {
	Describe("ParsePortList", func() {
		It("should merge ports and ranges into a sorted set", func() {
			ports, err := ParsePortList("8080, 3000,5000-5002,3000")
			Expect(err).NotTo(HaveOccurred())
			Expect(ports).To(Equal([]uint16{3000, 5000, 5001, 5002, 8080}))
		})

		It("should reject out of range ports", func() {
			_, err := ParsePortList("3000,65536")
			Expect(err).To(HaveOccurred())
		})

		It("should return an empty set for an empty list", func() {
			ports, err := ParsePortList("")
			Expect(err).NotTo(HaveOccurred())
			Expect(ports).To(BeEmpty())
		})
	})

	Describe("ParseRange", func() {
		It("should parse an inclusive range", func() {
			low, high, err := ParseRange("3000-3010")
			Expect(err).NotTo(HaveOccurred())
			Expect(low).To(Equal(uint16(3000)))
			Expect(high).To(Equal(uint16(3010)))
		})

		It("should reject reversed and malformed ranges", func() {
			_, _, err := ParseRange("3010-3000")
			Expect(err).To(HaveOccurred())
			_, _, err = ParseRange("a-b")
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("PortSet", func() {
		It("should combine ports and port_ranges", func() {
			ports, err := PortSet(models.ScannerConfig{Ports: []int{8080}, PortRanges: []string{"3000-3001"}})
			Expect(err).NotTo(HaveOccurred())
			Expect(ports).To(Equal([]uint16{3000, 3001, 8080}))
		})

		It("should reject an invalid port", func() {
			_, err := PortSet(models.ScannerConfig{Ports: []int{-1}})
			Expect(err).To(HaveOccurred())
		})
	})
})
