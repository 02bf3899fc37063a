package device

// fixedTuner accepts only the settings the stream was produced with. A
// capture file or pipe cannot be retuned from the reading side.
type fixedTuner struct {
	settings Settings
}

func (f *fixedTuner) SetFrequency(hz uint32) error {
	if hz != f.settings.Frequency {
		return ErrUnsupported
	}
	return nil
}

func (f *fixedTuner) SetSampleRate(hz uint32) error {
	if hz != f.settings.SampleRate {
		return ErrUnsupported
	}
	return nil
}

func (f *fixedTuner) SetGain(g Gain) error {
	if g != f.settings.Gain {
		return ErrUnsupported
	}
	return nil
}

func (f *fixedTuner) SetPPM(ppm int32) error {
	if ppm != f.settings.PPM {
		return ErrUnsupported
	}
	return nil
}
