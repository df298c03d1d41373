package session

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestSessionSuite(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "session end-to-end suite")
}
