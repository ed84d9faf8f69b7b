package command

// Runner override names shared with the transport tables.
const (
	RunnerProperty = "property"
	RunnerLocation = "location"
	RunnerDeploy   = "deploy"
	RunnerRestart  = "restart"
)

func init() {
	for _, s := range builtins {
		Register(s)
	}
}

var builtins = []Spec{
	{
		Kind:        "version",
		Description: "Show the server version",
	},
	{
		Kind:        "location",
		Description: "Show the installation and domain directories",
		Result:      ResultMap,
		HTTP:        Override{Runner: RunnerLocation},
	},
	{
		Kind:        "uptime",
		Description: "Show how long the DAS has been running",
	},
	{
		Kind:        "list-applications",
		Description: "List deployed applications",
		Result:      ResultList,
	},
	{
		Kind:        "list-jdbc-resources",
		Description: "List JDBC resources",
		Result:      ResultList,
	},
	{
		Kind:        "list-web-services",
		Description: "List deployed web services",
		Result:      ResultList,
		REST:        Override{Command: "__list-webservices"},
	},
	{
		Kind:        "get-property",
		Command:     "get",
		Description: "Read dotted-name properties matching a pattern",
		Result:      ResultMap,
		HTTP:        Override{Runner: RunnerProperty},
		REST:        Override{Runner: RunnerProperty},
		Required:    []string{"pattern"},
		Operand:     "pattern",
	},
	{
		Kind:        "set-property",
		Command:     "set",
		Description: "Set a dotted-name property",
		Result:      ResultMap,
		Mutating:    true,
		HTTP:        Override{Runner: RunnerProperty},
		REST:        Override{Runner: RunnerProperty},
		Required:    []string{"property"},
		Query:       setQuery,
	},
	{
		Kind:         "deploy",
		Description:  "Deploy an application archive or directory",
		Mutating:     true,
		NotRetryable: true,
		REST:         Override{Runner: RunnerDeploy},
		Required:     []string{"path"},
		Operand:      "path",
		Renames:      map[string]string{"context-root": "contextroot", "properties": PropertyParam},
	},
	{
		Kind:        "redeploy",
		Description: "Redeploy an application",
		Mutating:    true,
		REST:        Override{Runner: RunnerDeploy},
		Required:    []string{"name", "path"},
		Operand:     "path",
	},
	{
		Kind:        "undeploy",
		Description: "Undeploy an application",
		Mutating:    true,
		Required:    []string{"name"},
		Operand:     "name",
	},
	{
		Kind:        "create-jdbc-resource",
		Description: "Create a JDBC resource for a connection pool",
		Mutating:    true,
		Required:    []string{"jndi-name", "pool"},
		Operand:     "jndi-name",
		Renames:     map[string]string{"pool": "connectionpoolid", "properties": PropertyParam},
	},
	{
		Kind:        "delete-jdbc-resource",
		Description: "Delete a JDBC resource",
		Mutating:    true,
		Required:    []string{"jndi-name"},
		Operand:     "jndi-name",
	},
	{
		Kind:        "restart-domain",
		Description: "Restart the DAS",
		Mutating:    true,
		HTTP:        Override{Runner: RunnerRestart},
		REST:        Override{Runner: RunnerRestart},
	},
	{
		Kind:         "stop-domain",
		Description:  "Stop the DAS",
		Mutating:     true,
		NotRetryable: true,
		HTTP:         Override{Runner: RunnerRestart},
		REST:         Override{Runner: RunnerRestart},
	},
	{
		Kind:        "start-domain",
		Description: "Start a local domain",
		Result:      ResultProcess,
		Local:       true,
		Operand:     "domain",
	},
	{
		Kind:         "create-domain",
		Description:  "Create a local domain",
		Result:       ResultProcess,
		Local:        true,
		NotRetryable: true,
		Required:     []string{"domain"},
		Operand:      "domain",
	},
	{
		Kind:         "delete-domain",
		Description:  "Delete a local domain",
		Result:       ResultProcess,
		Local:        true,
		NotRetryable: true,
		Required:     []string{"domain"},
		Operand:      "domain",
	},
	{
		Kind:        "list-domains",
		Description: "List local domains",
		Result:      ResultProcess,
		Local:       true,
	},
}

// setQuery encodes property=value as the DEFAULT operand of "set".
func setQuery(c *Command) (string, error) {
	prop, err := c.RequireString("property")
	if err != nil {
		return "", err
	}
	value := c.Param("value")
	pairs := []Pair{{Key: DefaultParam, Value: prop + ParamAssign + value}}
	return Encode(pairs), nil
}
