package noise

import "fmt"

// SmoothstepFunc maps [0,1] onto [0,1] with s(0)=0 and s(1)=1.
type SmoothstepFunc func(x float64) float64

func s1(x float64) float64 { return x }

func s3(x float64) float64 {
	x2 := x * x
	return 3*x2 - 2*x2*x
}

func s5(x float64) float64 {
	x3 := x * x * x
	return x3 * (x*(6*x-15) + 10)
}

func s7(x float64) float64 {
	x4 := x * x * x * x
	return x4 * (x*(x*(-20*x+70)-84) + 35)
}

func s9(x float64) float64 {
	x5 := x * x * x * x * x
	return x5 * (x*(x*(x*(70*x-315)+540)-420) + 126)
}

// Smoothstep returns the minimal-degree polynomial of the given odd degree
// whose derivatives up to order (degree-1)/2 vanish at 0 and 1.
func Smoothstep(degree int) (SmoothstepFunc, error) {
	switch degree {
	case 1:
		return s1, nil
	case 3:
		return s3, nil
	case 5:
		return s5, nil
	case 7:
		return s7, nil
	case 9:
		return s9, nil
	default:
		return nil, fmt.Errorf("%w: smoothstep degree %d (want 1,3,5,7 or 9)", ErrInvalidConfig, degree)
	}
}
