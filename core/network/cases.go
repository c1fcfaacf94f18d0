package network

// Case2 is a two-bus system: a slack generator feeding a 50 MW, 10 MVAr
// load over one unconstrained line.
func Case2() *Case {
	return &Case{
		Name:    "case2",
		BaseMVA: 100,
		Buses: []Bus{
			{ID: 1, Type: Ref, Vm: 1, BaseKV: 135, Zone: 1, Area: 1, Vmax: 1.05, Vmin: 0.95},
			{ID: 2, Type: PQ, Pd: 50, Qd: 10, Vm: 1, BaseKV: 135, Zone: 1, Area: 1, Vmax: 1.05, Vmin: 0.95},
		},
		Branches: []Branch{
			{From: 1, To: 2, R: 0.01, X: 0.1, Status: 1, AngMin: -360, AngMax: 360},
		},
		Gens: []Gen{
			{Bus: 1, Qmax: 100, Qmin: -100, Vg: 1, MBase: 100, Status: 1, Pmax: 200},
		},
		GenCosts: []GenCost{
			{Model: Polynomial, Coeffs: []float64{0.01, 10, 0}},
		},
	}
}

// Case9 is the classic WSCC three-machine nine-bus system.
func Case9() *Case {
	bus := func(id int, t BusType, pd, qd float64) Bus {
		return Bus{ID: id, Type: t, Pd: pd, Qd: qd, Area: 1, Vm: 1, BaseKV: 345, Zone: 1, Vmax: 1.1, Vmin: 0.9}
	}
	line := func(f, t int, r, x, b, rate float64) Branch {
		return Branch{From: f, To: t, R: r, X: x, B: b, RateA: rate, RateB: rate, RateC: rate, Status: 1, AngMin: -360, AngMax: 360}
	}
	gen := func(b int, pg, pmax float64) Gen {
		return Gen{Bus: b, Pg: pg, Qmax: 300, Qmin: -300, Vg: 1, MBase: 100, Status: 1, Pmax: pmax, Pmin: 10}
	}
	return &Case{
		Name:    "case9",
		BaseMVA: 100,
		Buses: []Bus{
			bus(1, Ref, 0, 0), bus(2, PV, 0, 0), bus(3, PV, 0, 0),
			bus(4, PQ, 0, 0), bus(5, PQ, 90, 30), bus(6, PQ, 0, 0),
			bus(7, PQ, 100, 35), bus(8, PQ, 0, 0), bus(9, PQ, 125, 50),
		},
		Branches: []Branch{
			line(1, 4, 0, 0.0576, 0, 250),
			line(4, 5, 0.017, 0.092, 0.158, 250),
			line(5, 6, 0.039, 0.17, 0.358, 150),
			line(3, 6, 0, 0.0586, 0, 300),
			line(6, 7, 0.0119, 0.1008, 0.209, 150),
			line(7, 8, 0.0085, 0.072, 0.149, 250),
			line(8, 2, 0, 0.0625, 0, 250),
			line(8, 9, 0.032, 0.161, 0.306, 250),
			line(9, 4, 0.01, 0.085, 0.176, 250),
		},
		Gens: []Gen{gen(1, 0, 250), gen(2, 163, 300), gen(3, 85, 270)},
		GenCosts: []GenCost{
			{Model: Polynomial, Startup: 1500, Coeffs: []float64{0.11, 5, 150}},
			{Model: Polynomial, Startup: 2000, Coeffs: []float64{0.085, 1.2, 600}},
			{Model: Polynomial, Startup: 3000, Coeffs: []float64{0.1225, 1, 335}},
		},
	}
}
