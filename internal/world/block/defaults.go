package block

// Регистрируем базовый набор блоков при импорте пакета
func init() {
	Register(Uniform(AirBlockID, "air", false, 0))
	Register(Uniform(StoneBlockID, "stone", true, 1))
	Register(Uniform(DirtBlockID, "dirt", true, 2))
	Register(Type{ID: GrassBlockID, Name: "grass", Opaque: true, Top: 3, Bottom: 2, Side: 4})
	Register(Uniform(SandBlockID, "sand", true, 5))
	Register(Uniform(BedrockBlockID, "bedrock", true, 6))

	Register(Uniform(WaterBlockID, "water", false, 7))
	Register(Uniform(GlassBlockID, "glass", false, 8))
	Register(Uniform(LeavesBlockID, "leaves", false, 9))

	Register(Type{ID: LogBlockID, Name: "log", Opaque: true, Top: 10, Bottom: 10, Side: 11})
}
