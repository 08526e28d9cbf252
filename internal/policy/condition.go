package policy

// Condition is a predicate over collected infos.
type Condition interface {
	Requires() []Kind
	Match(infos *Infos) bool
}

type condition struct {
	requires []Kind
	match    func(*Infos) bool
}

func (c condition) Requires() []Kind {
	return c.requires
}

func (c condition) Match(infos *Infos) bool {
	return c.match(infos)
}

func anyOf[T any](items []T, pred func(T) bool) bool {
	for _, item := range items {
		if pred(item) {
			return true
		}
	}
	return false
}

func allOf[T any](items []T, pred func(T) bool) bool {
	for _, item := range items {
		if !pred(item) {
			return false
		}
	}
	return true
}

func thermalCondition(pred func(*ThermalInfo) bool) condition {
	return condition{
		requires: []Kind{KindThermal},
		match:    func(s *Infos) bool { return pred(s.Thermal()) },
	}
}

func fanCondition(pred func(*FanInfo) bool) condition {
	return condition{
		requires: []Kind{KindFan},
		match:    func(s *Infos) bool { return pred(s.Fan()) },
	}
}

func psuCondition(pred func(*PsuInfo) bool) condition {
	return condition{
		requires: []Kind{KindPsu},
		match:    func(s *Infos) bool { return pred(s.Psu()) },
	}
}
