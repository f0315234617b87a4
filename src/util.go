package pacsat

// Because sometimes it's really convenient to have C's ternary ?:
func IfThenElse[T any](x bool, a T, b T) T { //nolint:ireturn
	if x {
		return a
	} else {
		return b
	}
}

// Used for both KISS and AGWPE
const MAX_NET_CLIENTS = 3
