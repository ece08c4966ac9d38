package core

import "fmt"

type Environment string

const (
	DevelopmentEnv Environment = "development"
	ProductionEnv  Environment = "production"
)

func (e Environment) IsProduction() bool {
	return e == ProductionEnv
}

func (e Environment) IsDevelopment() bool {
	return e == DevelopmentEnv
}

// Validate rejects anything but the two known environments
func (e Environment) Validate() error {
	switch e {
	case DevelopmentEnv, ProductionEnv:
		return nil
	default:
		return fmt.Errorf("unknown environment %q: either 'development' or 'production' expected", string(e))
	}
}
