package models

import (
	"fmt"
)

// Role identifies which screenshot tree an artifact belongs to
type Role string

const (
	RoleGolden Role = "golden"
	RoleTested Role = "tested"
	RoleDiff   Role = "diff"
)

// Roles lists every artifact role
var Roles = []Role{RoleGolden, RoleTested, RoleDiff}

// Permutation is one concrete (suite, test, width, height) combination
type Permutation struct {
	SuiteName      string `json:"suiteName"`
	TestName       string `json:"testName"`
	ViewportWidth  int    `json:"viewportWidth"`
	ViewportHeight int    `json:"viewportHeight"`
}

// ClassName is the report class name: suite/test
func (p Permutation) ClassName() string {
	return p.SuiteName + "/" + p.TestName
}

// Dimensions is the report case name: WxH
func (p Permutation) Dimensions() string {
	return fmt.Sprintf("%dx%d", p.ViewportWidth, p.ViewportHeight)
}

func (p Permutation) String() string {
	return p.ClassName() + "/" + p.Dimensions()
}

// Permutations flattens viewport groups into permutations, group by group
func Permutations(groups []ViewportGroup) []Permutation {
	var perms []Permutation
	for _, group := range groups {
		for _, test := range group.Tests {
			perms = append(perms, Permutation{
				SuiteName:      test.SuiteName,
				TestName:       test.TestName,
				ViewportWidth:  group.ViewportWidth,
				ViewportHeight: group.ViewportHeight,
			})
		}
	}
	return perms
}

// CountTests returns the number of distinct selected tests across groups
func CountTests(groups []ViewportGroup) int {
	seen := make(map[int]struct{})
	for _, group := range groups {
		for _, test := range group.Tests {
			seen[test.SequenceNumber] = struct{}{}
		}
	}
	return len(seen)
}
