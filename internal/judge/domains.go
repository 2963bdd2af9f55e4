package judge

// AllDomains returns every known domain tag in a stable order.
func AllDomains() []Domain {
	return []Domain{
		DomainCode, DomainSolana, DomainMarket, DomainSocial,
		DomainHuman, DomainCynic, DomainCosmos,
	}
}

// AllAnalyses returns every known analysis tag in a stable order.
func AllAnalyses() []Analysis {
	return []Analysis{
		AnalysisPerceive, AnalysisJudge, AnalysisDecide, AnalysisAct,
		AnalysisLearn, AnalysisAccount, AnalysisEmerge,
	}
}
