package domain

import "fmt"

// Amount is a money value in Rwandan franc minor units.
type Amount int64

func (a Amount) String() string {
	return fmt.Sprintf("Frw %d", int64(a))
}
