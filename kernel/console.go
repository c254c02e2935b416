package kernel

// WriteConsole sends b to the console in pieces no larger than the
// console's chunk size, preserving order.
func (k *Kernel) WriteConsole(b []byte) error {
	max := k.Console.MaxChunk()
	if max <= 0 {
		max = len(b)
	}

	for len(b) > 0 {
		n := len(b)
		if n > max {
			n = max
		}

		err := k.Console.WriteBytes(b[:n])
		if err != nil {
			return err
		}

		b = b[n:]
	}

	return nil
}
