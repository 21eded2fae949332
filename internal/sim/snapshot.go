package sim

// Snapshot is one year's output record. Field names follow the external
// tabular schema so drivers can serialize rows without a mapping layer.
type Snapshot struct {
	Year int `json:"Year"`

	// Climate.
	CO2PPM                 float64 `json:"CO2_ppm"`
	BAUCO2PPM              float64 `json:"BAU_CO2_ppm"`
	CO2Avoided             float64 `json:"CO2_Avoided"`
	TemperatureAnomaly     float64 `json:"Temperature_Anomaly"`
	OceanUptakeGtC         float64 `json:"Ocean_Uptake_GtC"`
	LandUptakeGtC          float64 `json:"Land_Uptake_GtC"`
	AirborneFraction       float64 `json:"Airborne_Fraction"`
	PermafrostEmissionsGtC float64 `json:"Permafrost_Emissions_GtC"`
	FireEmissionsGtC       float64 `json:"Fire_Emissions_GtC"`
	CumulativeEmissionsGtC float64 `json:"Cumulative_Emissions_GtC"`
	ClimateRiskMultiplier  float64 `json:"Climate_Risk_Multiplier"`

	// Monetary and market.
	Inflation            float64 `json:"Inflation"`
	MarketPrice          float64 `json:"Market_Price"`
	PriceFloor           float64 `json:"Price_Floor"`
	Sentiment            float64 `json:"Sentiment"`
	CEABrakeFactor       float64 `json:"CEA_Brake_Factor"`
	NetCapitalFlow       float64 `json:"Net_Capital_Flow"`
	CapitalDemandPremium float64 `json:"Capital_Demand_Premium"`
	ForwardGuidance      float64 `json:"Forward_Guidance"`

	// Token ledger.
	XCRSupply           float64 `json:"XCR_Supply"`
	XCRMinted           float64 `json:"XCR_Minted"`
	XCRBurnedAnnual     float64 `json:"XCR_Burned_Annual"`
	XCRBurnedCumulative float64 `json:"XCR_Burned_Cumulative"`
	CobenefitBonusXCR   float64 `json:"Cobenefit_Bonus_XCR"`

	// Portfolio.
	ProjectsTotal       int `json:"Projects_Total"`
	ProjectsOperational int `json:"Projects_Operational"`
	ProjectsDevelopment int `json:"Projects_Development"`
	ProjectsFailed      int `json:"Projects_Failed"`

	SequestrationTonnes          float64 `json:"Sequestration_Tonnes"`
	CDRSequestrationTonnes       float64 `json:"CDR_Sequestration_Tonnes"`
	ConventionalMitigationTonnes float64 `json:"Conventional_Mitigation_Tonnes"`
	AvoidedDeforestationTonnes   float64 `json:"Avoided_Deforestation_Tonnes"`
	ReversalTonnes               float64 `json:"Reversal_Tonnes"`

	CDRCostPerTonne             float64 `json:"CDR_Cost_Per_Tonne"`
	ConventionalCostPerTonne    float64 `json:"Conventional_Cost_Per_Tonne"`
	CDRCumulativeGtCO2          float64 `json:"CDR_Cumulative_GtCO2"`
	ConventionalCumulativeGtCO2 float64 `json:"Conventional_Cumulative_GtCO2"`
	CDRREffective               float64 `json:"CDR_R_Effective"`
	ConventionalREffective      float64 `json:"Conventional_R_Effective"`

	ConventionalCapacityUtilization float64 `json:"Conventional_Capacity_Utilization"`
	CDRMaterialUtilization          float64 `json:"CDR_Material_Utilization"`
	CDRBuildoutStopped              bool    `json:"CDR_Buildout_Stopped"`

	// CQE.
	CQESpent             float64 `json:"CQE_Spent"`
	AnnualCQESpent       float64 `json:"Annual_CQE_Spent"`
	AnnualCQEBudget      float64 `json:"Annual_CQE_Budget"`
	CQEBudgetUtilization float64 `json:"CQE_Budget_Utilization"`
	XCRPurchased         float64 `json:"XCR_Purchased"`
	CQEBudgetTotal       float64 `json:"CQE_Budget_Total"`

	// Adoption.
	ActiveCountries int `json:"Active_Countries"`
}

// CountryReport is the end-of-run per-country attribution row.
type CountryReport struct {
	Name         string  `json:"name"`
	Active       bool    `json:"active"`
	XCREarned    float64 `json:"xcrEarned"`
	XCRPurchased float64 `json:"xcrPurchasedEquivalent"`
}
