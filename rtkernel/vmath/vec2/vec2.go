package vec2

type T [2]float64

// Clamp01 clamps both components into [0, 1].
func Clamp01(v T) T {
	for i := range v {
		if v[i] < 0 {
			v[i] = 0
		}
		if v[i] > 1 {
			v[i] = 1
		}
	}
	return v
}
