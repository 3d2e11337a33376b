package equipment

import (
	"testing"

	"github.com/stretchr/testify/suite"
)

func TestRegistrySuite(t *testing.T) {
	suite.Run(t, new(RegistrySuite))
}
