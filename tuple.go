package classify

// KeyValue is a two element tuple serialized as a key/value pair.
type KeyValue[K, V any] struct {
	Key   K
	Value V
}

func NewKeyValue[K, V any](key K, value V) KeyValue[K, V] {
	return KeyValue[K, V]{Key: key, Value: value}
}

func (KeyValue[K, V]) keyValue() {}

type keyValueMarker interface{ keyValue() }

type tupleMarker interface{ tupleArity() int }

type Tuple2[T1, T2 any] struct {
	Item1 T1
	Item2 T2
}

type Tuple3[T1, T2, T3 any] struct {
	Item1 T1
	Item2 T2
	Item3 T3
}

type Tuple4[T1, T2, T3, T4 any] struct {
	Item1 T1
	Item2 T2
	Item3 T3
	Item4 T4
}

type Tuple5[T1, T2, T3, T4, T5 any] struct {
	Item1 T1
	Item2 T2
	Item3 T3
	Item4 T4
	Item5 T5
}

type Tuple6[T1, T2, T3, T4, T5, T6 any] struct {
	Item1 T1
	Item2 T2
	Item3 T3
	Item4 T4
	Item5 T5
	Item6 T6
}

type Tuple7[T1, T2, T3, T4, T5, T6, T7 any] struct {
	Item1 T1
	Item2 T2
	Item3 T3
	Item4 T4
	Item5 T5
	Item6 T6
	Item7 T7
}

type Tuple8[T1, T2, T3, T4, T5, T6, T7, T8 any] struct {
	Item1 T1
	Item2 T2
	Item3 T3
	Item4 T4
	Item5 T5
	Item6 T6
	Item7 T7
	Item8 T8
}

func (Tuple2[T1, T2]) tupleArity() int                         { return 2 }
func (Tuple3[T1, T2, T3]) tupleArity() int                     { return 3 }
func (Tuple4[T1, T2, T3, T4]) tupleArity() int                 { return 4 }
func (Tuple5[T1, T2, T3, T4, T5]) tupleArity() int             { return 5 }
func (Tuple6[T1, T2, T3, T4, T5, T6]) tupleArity() int         { return 6 }
func (Tuple7[T1, T2, T3, T4, T5, T6, T7]) tupleArity() int     { return 7 }
func (Tuple8[T1, T2, T3, T4, T5, T6, T7, T8]) tupleArity() int { return 8 }

func NewTuple2[T1, T2 any](i1 T1, i2 T2) Tuple2[T1, T2] {
	return Tuple2[T1, T2]{i1, i2}
}

func NewTuple3[T1, T2, T3 any](i1 T1, i2 T2, i3 T3) Tuple3[T1, T2, T3] {
	return Tuple3[T1, T2, T3]{i1, i2, i3}
}

func NewTuple4[T1, T2, T3, T4 any](i1 T1, i2 T2, i3 T3, i4 T4) Tuple4[T1, T2, T3, T4] {
	return Tuple4[T1, T2, T3, T4]{i1, i2, i3, i4}
}
