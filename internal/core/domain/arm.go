package domain

// ARM deployment parameter file constants
const (
	ARMParametersSchema         = "https://schema.management.azure.com/schemas/2019-04-01/deploymentParameters.json#"
	ARMParametersContentVersion = "1.0.0.0"
)

// ARMParameters maps parameter names to their ARM value wrapper
type ARMParameters map[string]ARMParameterValue

// ARMParameterFile is the document handed to the deployment engine
type ARMParameterFile struct {
	Schema         string        `json:"$schema"`
	ContentVersion string        `json:"contentVersion"`
	Parameters     ARMParameters `json:"parameters"`
}

// ARMParameterValue wraps a single parameter value
type ARMParameterValue struct {
	Value string `json:"value"`
}

// ToARMParameters builds an ARM parameter file from a parameter set.
// Values are passed through verbatim; template-side type coercion is the
// deployment engine's job.
func ToARMParameters(params []*SubscriptionTemplateParameter) *ARMParameterFile {
	file := &ARMParameterFile{
		Schema:         ARMParametersSchema,
		ContentVersion: ARMParametersContentVersion,
		Parameters:     make(ARMParameters, len(params)),
	}
	for _, p := range params {
		file.Parameters[p.ParameterName] = ARMParameterValue{Value: p.ParameterValue}
	}
	return file
}
