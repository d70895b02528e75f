package jobstate_test

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestJobState(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "JobState Suite")
}
