package vectorlite

import "fmt"

// Strategy selects which ANN index backs an engine.
type Strategy int

const (
	StrategyBruteForce Strategy = iota
	StrategyHNSW
	StrategyIVF
)

func (s Strategy) String() string {
	switch s {
	case StrategyBruteForce:
		return "bruteforce"
	case StrategyHNSW:
		return "hnsw"
	case StrategyIVF:
		return "ivf"
	default:
		return "unknown"
	}
}

// enumCodec is a bijective mapping between a named variant and a small
// integer code, used by the snapshot header to persist the metric and
// strategy in a forward- and backward-verifiable way. Registration
// panics on a duplicate code or name, since that can only happen from
// a programming mistake in this package, never from untrusted input.
type enumCodec struct {
	nameToCode map[string]uint8
	codeToName map[uint8]string
}

func newEnumCodec() *enumCodec {
	return &enumCodec{
		nameToCode: make(map[string]uint8),
		codeToName: make(map[uint8]string),
	}
}

func (c *enumCodec) register(name string, code uint8) {
	if _, exists := c.nameToCode[name]; exists {
		panic(fmt.Sprintf("enumCodec: duplicate name %q", name))
	}
	if _, exists := c.codeToName[code]; exists {
		panic(fmt.Sprintf("enumCodec: duplicate code %d", code))
	}
	c.nameToCode[name] = code
	c.codeToName[code] = name
}

func (c *enumCodec) encode(name string) (uint8, error) {
	code, ok := c.nameToCode[name]
	if !ok {
		return 0, fmt.Errorf("enumCodec: unknown variant %q", name)
	}
	return code, nil
}

func (c *enumCodec) decode(code uint8) (string, error) {
	name, ok := c.codeToName[code]
	if !ok {
		return "", fmt.Errorf("enumCodec: unknown code %d", code)
	}
	return name, nil
}

var metricCodec = func() *enumCodec {
	c := newEnumCodec()
	c.register(MetricCosine.String(), 0)
	c.register(MetricL2.String(), 1)
	c.register(MetricDot.String(), 2)
	return c
}()

var strategyCodec = func() *enumCodec {
	c := newEnumCodec()
	c.register(StrategyBruteForce.String(), 0)
	c.register(StrategyHNSW.String(), 1)
	c.register(StrategyIVF.String(), 2)
	return c
}()

func encodeMetric(m Metric) (uint8, error) { return metricCodec.encode(m.String()) }

func decodeMetric(code uint8) (Metric, error) {
	name, err := metricCodec.decode(code)
	if err != nil {
		return 0, err
	}
	switch name {
	case "cosine":
		return MetricCosine, nil
	case "l2":
		return MetricL2, nil
	case "dot":
		return MetricDot, nil
	default:
		return 0, fmt.Errorf("enumCodec: unhandled metric %q", name)
	}
}

func encodeStrategy(s Strategy) (uint8, error) { return strategyCodec.encode(s.String()) }

func decodeStrategy(code uint8) (Strategy, error) {
	name, err := strategyCodec.decode(code)
	if err != nil {
		return 0, err
	}
	switch name {
	case "bruteforce":
		return StrategyBruteForce, nil
	case "hnsw":
		return StrategyHNSW, nil
	case "ivf":
		return StrategyIVF, nil
	default:
		return 0, fmt.Errorf("enumCodec: unhandled strategy %q", name)
	}
}
