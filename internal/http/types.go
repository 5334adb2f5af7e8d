package http

type Developer struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// AboutResponse is the body of GET /about.
type AboutResponse struct {
	Version string      `json:"version"`
	Name    string      `json:"name"`
	Devs    []Developer `json:"devs"`
}

type HealthResponse struct {
	Result string `json:"result"`
}

var about = AboutResponse{
	Version: "1.0",
	Name:    "Crypto Bot Father",
	Devs: []Developer{
		{Name: "Melroy van den Berg", Email: "melroy@melroy.org"},
	},
}
