package logging

import (
	"testing"

	"go.viam.com/test"
)

func TestValidatePattern(t *testing.T) {
	test.That(t, ValidatePattern("balance"), test.ShouldBeTrue)
	test.That(t, ValidatePattern("balance.*"), test.ShouldBeTrue)
	test.That(t, ValidatePattern("balance.icp_planner"), test.ShouldBeTrue)
	test.That(t, ValidatePattern("balance..planner"), test.ShouldBeFalse)
	test.That(t, ValidatePattern(""), test.ShouldBeFalse)
}

func TestRegistryUpdateConfig(t *testing.T) {
	reg := NewRegistry()
	root := NewBlankLogger("balance")
	planner := reg.Register(root.Sublogger("planner"))
	optimizer := reg.Register(root.Sublogger("optimizer"))
	test.That(t, reg.Names(), test.ShouldResemble, []string{"balance.optimizer", "balance.planner"})

	err := reg.UpdateConfig([]LoggerPatternConfig{
		{Pattern: "balance.*", Level: "warn"},
		{Pattern: "balance.planner", Level: "error"},
	})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, optimizer.GetLevel(), test.ShouldEqual, WARN)
	test.That(t, planner.GetLevel(), test.ShouldEqual, ERROR)

	// Loggers registered after the config was set still pick it up.
	toeOff := reg.Register(root.Sublogger("toeoff"))
	test.That(t, toeOff.GetLevel(), test.ShouldEqual, WARN)

	err = reg.UpdateConfig([]LoggerPatternConfig{{Pattern: "balance.planner", Level: "shout"}})
	test.That(t, err, test.ShouldNotBeNil)
	err = reg.UpdateConfig([]LoggerPatternConfig{{Pattern: "..", Level: "info"}})
	test.That(t, err, test.ShouldNotBeNil)
}
